package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService  = "service"
	FieldDeviceID = "device_id"
	FieldFileKey  = "file_key"
	FieldIP       = "ip"
	FieldReason   = "reason"
	FieldBytes    = "bytes"
	FieldError    = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// DeviceID returns a slog attribute for the device identifier.
func DeviceID(id string) slog.Attr {
	return slog.String(FieldDeviceID, id)
}

// FileKey returns a slog attribute for the object key being fetched.
func FileKey(key string) slog.Attr {
	return slog.String(FieldFileKey, key)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Reason returns a slog attribute for a denial or queueing reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Bytes returns a slog attribute for a byte count.
func Bytes(n int64) slog.Attr {
	return slog.Int64(FieldBytes, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
