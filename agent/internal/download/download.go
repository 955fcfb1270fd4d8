// Package download fetches granted files to disk. A file lands in a
// staging path first and is promoted with an atomic rename only after its
// checksum verifies, so a partial fetch can never shadow a good payload.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seaward-systems/fleetgate/agent/internal/client"
	"github.com/seaward-systems/fleetgate/agent/internal/ledger"
	"github.com/seaward-systems/fleetgate/common/logging"
)

const (
	chunkSize        = 8192
	progressInterval = 5 * time.Second
	stagingSuffix    = ".download"
)

// ErrChecksumMismatch is returned when the fetched payload does not hash
// to the value the gate advertised.
var ErrChecksumMismatch = errors.New("payload checksum mismatch")

// Downloader requests grants and streams payloads for one device.
type Downloader struct {
	client  *client.Client
	ledger  *ledger.Ledger
	dir     string
	retries uint64
	delay   time.Duration
}

// New creates a downloader writing into dir. Failed attempts are retried
// twice more at a constant delay before giving up.
func New(c *client.Client, led *ledger.Ledger, dir string) *Downloader {
	return &Downloader{
		client:  c,
		ledger:  led,
		dir:     dir,
		retries: 3,
		delay:   5 * time.Second,
	}
}

// WithRetryPolicy overrides the attempt count and inter-attempt delay.
// At least one attempt is always made.
func (d *Downloader) WithRetryPolicy(retries uint64, delay time.Duration) *Downloader {
	if retries < 1 {
		retries = 1
	}
	d.retries = retries
	d.delay = delay
	return d
}

// Download fetches fileKey into the download directory and returns the
// final path. wantSHA256, when non-empty, must match the fetched payload.
// Policy denials abort immediately; transient failures are retried.
func (d *Downloader) Download(ctx context.Context, fileKey, wantSHA256 string) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	outputPath := filepath.Join(d.dir, filepath.Base(fileKey))

	var size int64
	var gotSHA string
	attempt := func() error {
		grant, err := d.client.RequestDownload(ctx, fileKey)
		if err != nil {
			return classify(err)
		}

		size, gotSHA, err = d.fetch(ctx, grant.DownloadURL, outputPath, wantSHA256)
		if err != nil {
			if errors.Is(err, ErrChecksumMismatch) {
				return backoff.Permanent(err)
			}
			return classify(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.delay), d.retries-1), ctx)

	notify := func(err error, wait time.Duration) {
		slog.Warn("download attempt failed, retrying",
			logging.FileKey(fileKey), logging.Error(err),
			slog.Duration("retry_in", wait))
	}

	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		d.record(ledger.Record{
			FileKey:    fileKey,
			OutputPath: outputPath,
			Success:    false,
			Error:      err.Error(),
		})
		return "", err
	}

	d.record(ledger.Record{
		FileKey:    fileKey,
		OutputPath: outputPath,
		FileSize:   size,
		SHA256:     gotSHA,
		Success:    true,
	})

	slog.Info("file downloaded",
		logging.FileKey(fileKey), logging.Bytes(size),
		slog.String("path", outputPath))
	return outputPath, nil
}

// fetch streams the granted locator into a staging file, verifies the
// checksum when one is expected, and only then promotes it.
func (d *Downloader) fetch(ctx context.Context, downloadURL, outputPath, wantSHA256 string) (int64, string, error) {
	resp, err := d.client.Fetch(ctx, downloadURL)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	staging := outputPath + stagingSuffix
	f, err := os.Create(staging)
	if err != nil {
		return 0, "", fmt.Errorf("create staging file: %w", err)
	}

	hasher := sha256.New()
	pw := &progressWriter{
		fileKey: filepath.Base(outputPath),
		total:   resp.ContentLength,
		lastLog: time.Now(),
	}

	written, err := io.CopyBuffer(io.MultiWriter(f, hasher, pw), resp.Body, make([]byte, chunkSize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(staging)
		return 0, "", fmt.Errorf("stream payload: %w", err)
	}

	gotSHA := hex.EncodeToString(hasher.Sum(nil))
	if wantSHA256 != "" && gotSHA != wantSHA256 {
		os.Remove(staging)
		return 0, "", fmt.Errorf("%w: want %s got %s", ErrChecksumMismatch, wantSHA256, gotSHA)
	}

	// Promotion is the commit point.
	if err := os.Rename(staging, outputPath); err != nil {
		os.Remove(staging)
		return 0, "", fmt.Errorf("promote staging file: %w", err)
	}

	return written, gotSHA, nil
}

func (d *Downloader) record(rec ledger.Record) {
	rec.DeviceID = d.client.DeviceID()
	if err := d.ledger.Append(rec); err != nil {
		slog.Warn("failed to append ledger record", logging.Error(err))
	}
}

// classify wraps policy denials so the retry loop stops on them.
func classify(err error) error {
	var se *client.StatusError
	if errors.As(err, &se) && se.Permanent() {
		return backoff.Permanent(err)
	}
	return err
}

// progressWriter logs transfer progress at most every few seconds.
type progressWriter struct {
	fileKey string
	total   int64
	written int64
	lastLog time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if time.Since(p.lastLog) >= progressInterval {
		if p.total > 0 {
			slog.Info("download progress",
				logging.FileKey(p.fileKey),
				slog.String("percent", fmt.Sprintf("%.1f", float64(p.written)/float64(p.total)*100)),
				logging.Bytes(p.written))
		} else {
			slog.Info("download progress",
				logging.FileKey(p.fileKey), logging.Bytes(p.written))
		}
		p.lastLog = time.Now()
	}
	return len(b), nil
}
