package repository

import (
	"context"
	"errors"

	"github.com/seaward-systems/fleetgate/gate/internal/models"
)

var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrDeviceExists    = errors.New("device already exists")
	ErrCounterNotFound = errors.New("download counter not found")
)

// Repository persists the device registry, per-(device, file) download
// counters, and the append-only security event store. Counters and events
// are analytics records, never consulted for authorization.
type Repository interface {
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]*models.Device, error)

	// RecordDownload upserts the (device, file) counter: increments the
	// count and stamps last download time, requester IP and client
	// descriptor.
	RecordDownload(ctx context.Context, deviceID, fileKey, ipAddress, userAgent string) error
	GetDownloadCounter(ctx context.Context, deviceID, fileKey string) (*models.DownloadCounter, error)

	// AppendSecurityEvent appends one event. Events are never updated or
	// deleted.
	AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error
	ListSecurityEvents(ctx context.Context, limit int) ([]*models.SecurityEvent, error)

	Close()
}
