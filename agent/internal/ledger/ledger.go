// Package ledger keeps the local download history as an append-only JSONL
// file. One line per attempt; the file is never rewritten, so a crash
// mid-append loses at most the current line.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is one download attempt, successful or not.
type Record struct {
	DeviceID   string    `json:"device_id"`
	FileKey    string    `json:"file_key"`
	OutputPath string    `json:"output_path"`
	FileSize   int64     `json:"file_size"`
	SHA256     string    `json:"sha256,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Ledger appends records to a single JSONL file.
type Ledger struct {
	path string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Append writes one record. The timestamp is stamped here when unset.
func (l *Ledger) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return nil
}

// LoadAll reads every parseable record. Corrupt lines are skipped so one
// torn write cannot poison the whole history.
func (l *Ledger) LoadAll() ([]Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read ledger: %w", err)
	}
	return records, nil
}

// LastSuccess returns the most recent successful record for fileKey, or
// nil when the file was never fetched.
func (l *Ledger) LastSuccess(fileKey string) (*Record, error) {
	records, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].FileKey == fileKey && records[i].Success {
			return &records[i], nil
		}
	}
	return nil, nil
}
