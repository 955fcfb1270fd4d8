// Package models defines the wire and storage types for the gate service.
package models

import "time"

// DownloadRequest is the signed request body for POST /api/v1/request-download.
type DownloadRequest struct {
	DeviceID  string `json:"device_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	FileKey   string `json:"file_key"`
}

// DownloadResponse is returned on a granted request.
type DownloadResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Device is a registered client in the device registry.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DownloadCounter is the per-(device, file) issuance record. It exists for
// analytics, not authorization.
type DownloadCounter struct {
	DeviceID      string    `json:"device_id"`
	FileKey       string    `json:"file_key"`
	DownloadCount int       `json:"download_count"`
	LastDownload  time.Time `json:"last_download"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
}

// SecurityEvent is one append-only record in the security event store.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	DeviceID  string    `json:"device_id"`
	IPAddress string    `json:"ip_address"`
	Details   string    `json:"details"`
}

// Security event types written by the admission pipeline.
const (
	EventMissingParams    = "missing_parameters"
	EventDownloadGranted  = "download_granted"
	EventLocationDenied   = "location_denied"
	EventInvalidSignature = "invalid_signature"
	EventStaleTimestamp   = "stale_timestamp"
	EventRateLimited      = "rate_limited"
	EventIssuerError      = "issuer_error"
)

// FileInfo describes one downloadable object in the listing response.
type FileInfo struct {
	FileKey   string    `json:"file_key"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
	SHA256    string    `json:"sha256"`
}

// ListFilesResponse is the body of GET /api/v1/files.
type ListFilesResponse struct {
	Files  []FileInfo `json:"files"`
	Device DeviceInfo `json:"device"`
}

// DeviceInfo is the device descriptor echoed in the listing response.
type DeviceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
