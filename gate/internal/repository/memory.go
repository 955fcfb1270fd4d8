package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seaward-systems/fleetgate/gate/internal/models"
)

type counterKey struct {
	deviceID string
	fileKey  string
}

// InMemoryRepository is the default store for single-instance deployments
// and tests. State lives for the process lifetime only.
type InMemoryRepository struct {
	devices  map[string]*models.Device
	counters map[counterKey]*models.DownloadCounter
	events   []*models.SecurityEvent
	mu       sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices:  make(map[string]*models.Device),
		counters: make(map[counterKey]*models.DownloadCounter),
	}
}

func (r *InMemoryRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.ID]; exists {
		return ErrDeviceExists
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	r.devices[device.ID] = device
	return nil
}

func (r *InMemoryRepository) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, exists := r.devices[id]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

func (r *InMemoryRepository) ListDevices(ctx context.Context) ([]*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (r *InMemoryRepository) RecordDownload(ctx context.Context, deviceID, fileKey, ipAddress, userAgent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := counterKey{deviceID: deviceID, fileKey: fileKey}
	counter, exists := r.counters[key]
	if !exists {
		counter = &models.DownloadCounter{
			DeviceID: deviceID,
			FileKey:  fileKey,
		}
		r.counters[key] = counter
	}

	counter.DownloadCount++
	counter.LastDownload = time.Now().UTC()
	counter.IPAddress = ipAddress
	counter.UserAgent = userAgent
	return nil
}

func (r *InMemoryRepository) GetDownloadCounter(ctx context.Context, deviceID, fileKey string) (*models.DownloadCounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counter, exists := r.counters[counterKey{deviceID: deviceID, fileKey: fileKey}]
	if !exists {
		return nil, ErrCounterNotFound
	}
	return counter, nil
}

func (r *InMemoryRepository) AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return nil
}

func (r *InMemoryRepository) ListSecurityEvents(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Newest first.
	n := len(r.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	events := make([]*models.SecurityEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		events = append(events, r.events[i])
	}
	return events, nil
}

func (r *InMemoryRepository) Close() {}
