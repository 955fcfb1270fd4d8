// Package updater drives one update cycle: fetch the gate's file listing,
// work out which payloads are new or stale locally, download them, and run
// installer scripts when automatic updates are on.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/seaward-systems/fleetgate/agent/internal/client"
	"github.com/seaward-systems/fleetgate/agent/internal/config"
	"github.com/seaward-systems/fleetgate/agent/internal/download"
	"github.com/seaward-systems/fleetgate/common/logging"
)

// Reasons a file lands in the download queue.
const (
	reasonNew     = "new"
	reasonUpdated = "updated"
)

// installerNames are the scripts the updater executes after download when
// auto_update is enabled.
var installerNames = map[string]bool{
	"install.sh": true,
	"setup.sh":   true,
}

// Result summarizes one update cycle.
type Result struct {
	Available  int
	Downloaded int
	Failed     int
}

// Updater checks for and applies payload updates for one device.
type Updater struct {
	client     *client.Client
	downloader *download.Downloader
	cfg        *config.Config

	// runScript executes an installer. Swapped out in tests.
	runScript func(ctx context.Context, path string) error
}

func New(c *client.Client, d *download.Downloader, cfg *config.Config) *Updater {
	return &Updater{
		client:     c,
		downloader: d,
		cfg:        cfg,
		runScript: func(ctx context.Context, path string) error {
			cmd := exec.CommandContext(ctx, "bash", path)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd.Run()
		},
	}
}

type queueItem struct {
	file   client.RemoteFile
	reason string
}

// CheckForUpdates runs one cycle and stamps last_check afterwards, whether
// or not anything was downloaded.
func (u *Updater) CheckForUpdates(ctx context.Context) (*Result, error) {
	slog.Info("checking for updates")

	listing, err := u.client.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	queue := u.buildQueue(listing.Files)
	result := &Result{Available: len(listing.Files)}

	for _, item := range queue {
		slog.Info("downloading file",
			logging.FileKey(item.file.FileKey),
			logging.Reason(item.reason))

		path, err := u.downloader.Download(ctx, item.file.FileKey, item.file.SHA256)
		if err != nil {
			slog.Error("download failed",
				logging.FileKey(item.file.FileKey), logging.Error(err))
			result.Failed++
			var se *client.StatusError
			if errors.As(err, &se) && se.Permanent() {
				// The gate is refusing this device; the rest of the
				// queue will fare no better.
				break
			}
			continue
		}
		result.Downloaded++

		if err := u.postProcess(ctx, item.file, path); err != nil {
			slog.Error("post-processing failed",
				logging.FileKey(item.file.FileKey), logging.Error(err))
		}
	}

	if err := u.cfg.TouchLastCheck(); err != nil {
		slog.Warn("failed to persist last check time", logging.Error(err))
	}

	slog.Info("update check complete",
		slog.Int("available", result.Available),
		slog.Int("downloaded", result.Downloaded),
		slog.Int("failed", result.Failed))
	return result, nil
}

// buildQueue diffs the remote listing against the download directory. A
// file qualifies when it is absent locally or the remote copy is newer
// than the local modification time.
func (u *Updater) buildQueue(files []client.RemoteFile) []queueItem {
	var queue []queueItem
	for _, f := range files {
		if f.FileKey == "" {
			continue
		}
		localPath := filepath.Join(u.cfg.DownloadDir, filepath.Base(f.FileKey))

		info, err := os.Stat(localPath)
		if err != nil {
			queue = append(queue, queueItem{file: f, reason: reasonNew})
			continue
		}

		if !f.UpdatedAt.IsZero() && f.UpdatedAt.After(info.ModTime()) {
			queue = append(queue, queueItem{file: f, reason: reasonUpdated})
		}
	}
	return queue
}

// postProcess marks scripts executable and runs installers. Installers only
// run when auto_update is on and the payload's checksum was verified
// against the listing.
func (u *Updater) postProcess(ctx context.Context, f client.RemoteFile, path string) error {
	if !strings.HasSuffix(path, ".sh") && !strings.HasSuffix(path, ".py") {
		return nil
	}

	if err := os.Chmod(path, 0o755); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	slog.Info("marked file executable", slog.String("path", path))

	if !installerNames[filepath.Base(path)] || !u.cfg.AutoUpdate {
		return nil
	}
	if f.SHA256 == "" {
		slog.Warn("refusing to run unverified installer", slog.String("path", path))
		return nil
	}

	slog.Info("running installer script", slog.String("path", path))
	if err := u.runScript(ctx, path); err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}
	slog.Info("installer script finished", slog.String("path", path))
	return nil
}
