package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seaward-systems/fleetgate/gate/internal/models"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO devices (id, name, type, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		device.ID, device.Name, device.Type, device.Active, device.CreatedAt,
	)
	if err != nil {
		// 23505: unique constraint violation
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDeviceExists
		}
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, name, type, active, created_at
		FROM devices
		WHERE id = $1
	`

	var device models.Device
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&device.ID, &device.Name, &device.Type, &device.Active, &device.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &device, nil
}

func (r *PostgresRepository) ListDevices(ctx context.Context) ([]*models.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, name, type, active, created_at
		FROM devices
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var device models.Device
		if err := rows.Scan(&device.ID, &device.Name, &device.Type, &device.Active, &device.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, &device)
	}
	return devices, rows.Err()
}

func (r *PostgresRepository) RecordDownload(ctx context.Context, deviceID, fileKey, ipAddress, userAgent string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO download_counters (device_id, file_key, download_count, last_download, ip_address, user_agent)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (device_id, file_key) DO UPDATE SET
			download_count = download_counters.download_count + 1,
			last_download = EXCLUDED.last_download,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent
	`

	_, err := r.pool.Exec(ctx, query, deviceID, fileKey, time.Now().UTC(), ipAddress, userAgent)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetDownloadCounter(ctx context.Context, deviceID, fileKey string) (*models.DownloadCounter, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT device_id, file_key, download_count, last_download, ip_address, user_agent
		FROM download_counters
		WHERE device_id = $1 AND file_key = $2
	`

	var counter models.DownloadCounter
	err := r.pool.QueryRow(ctx, query, deviceID, fileKey).Scan(
		&counter.DeviceID, &counter.FileKey, &counter.DownloadCount,
		&counter.LastDownload, &counter.IPAddress, &counter.UserAgent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCounterNotFound
		}
		return nil, fmt.Errorf("get download counter: %w", err)
	}
	return &counter, nil
}

func (r *PostgresRepository) AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO security_events (id, timestamp, event_type, device_id, ip_address, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Timestamp, event.EventType, event.DeviceID, event.IPAddress, event.Details,
	)
	if err != nil {
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSecurityEvents(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, timestamp, event_type, device_id, ip_address, details
		FROM security_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}
	defer rows.Close()

	var events []*models.SecurityEvent
	for rows.Next() {
		var event models.SecurityEvent
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType, &event.DeviceID, &event.IPAddress, &event.Details); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
