// Package client is the agent's HTTP client for the gate API. Every
// request is signed with the shared device secret.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seaward-systems/fleetgate/common/signing"
)

const (
	// apiTimeout bounds the small JSON exchanges end to end.
	apiTimeout = 30 * time.Second

	// readIdleTimeout bounds how long a payload stream may go without
	// delivering a single byte. A slow but steady transfer is never
	// cut off; only a stalled connection is.
	readIdleTimeout = 30 * time.Second
)

// StatusError is a non-2xx response from the gate. Code carries the HTTP
// status; Message carries the server's error body when it had one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gate returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("gate returned %d", e.Code)
}

// Permanent reports whether retrying the same request can ever succeed.
// Policy denials will repeat until an operator intervenes, so the caller
// should stop rather than hammer the gate.
func (e *StatusError) Permanent() bool {
	return e.Code == http.StatusForbidden || e.Code == http.StatusUnauthorized
}

// Grant is the gate's answer to an admitted download request.
type Grant struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// RemoteFile is one entry in the gate's file listing.
type RemoteFile struct {
	FileKey   string    `json:"file_key"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
	SHA256    string    `json:"sha256"`
}

// Listing is the full response of the files endpoint.
type Listing struct {
	Files  []RemoteFile `json:"files"`
	Device struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"device"`
}

// Client talks to one gate instance on behalf of one device. API calls
// use an overall deadline; payload streaming does not, since a large
// file on a slow link legitimately takes longer than any fixed budget.
type Client struct {
	baseURL   string
	deviceID  string
	userAgent string
	signer    *signing.Signer
	api       *http.Client
	stream    *http.Client
	readIdle  time.Duration
}

// New creates a client. serverURL is the gate base address; secretKey is
// the shared HMAC secret.
func New(serverURL, secretKey, deviceID string) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(serverURL, "/"),
		deviceID:  deviceID,
		userAgent: fmt.Sprintf("fleetgate-agent/1.0 (%s)", deviceID),
		signer:    signing.New(secretKey),
		api: &http.Client{
			Timeout: apiTimeout,
		},
		stream: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: apiTimeout}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: apiTimeout,
			},
		},
		readIdle: readIdleTimeout,
	}
}

// WithReadIdleTimeout overrides the per-read stall bound for Fetch.
func (c *Client) WithReadIdleTimeout(d time.Duration) *Client {
	c.readIdle = d
	return c
}

// DeviceID reports the identity this client signs as.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// RequestDownload asks the gate for a grant on fileKey.
func (c *Client) RequestDownload(ctx context.Context, fileKey string) (*Grant, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	payload, err := json.Marshal(map[string]string{
		"device_id": c.deviceID,
		"timestamp": ts,
		"signature": c.signer.Sign(c.deviceID, ts),
		"file_key":  fileKey,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/request-download", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var grant Grant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("decode grant: %w", err)
	}
	return &grant, nil
}

// ListFiles fetches the signed file listing.
func (c *Client) ListFiles(ctx context.Context) (*Listing, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/files", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("device_id", c.deviceID)
	q.Set("timestamp", ts)
	q.Set("signature", c.signer.Sign(c.deviceID, ts))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return &listing, nil
}

// Fetch opens the granted locator for streaming. The caller owns the
// response body. The transfer carries no overall deadline; a stall with
// no bytes arriving for the read idle timeout aborts it.
func (c *Client) Fetch(ctx context.Context, downloadURL string) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	resp.Body = &watchdogBody{
		rc:      resp.Body,
		timeout: c.readIdle,
		timer:   time.AfterFunc(c.readIdle, cancel),
		cancel:  cancel,
	}
	return resp, nil
}

// watchdogBody cancels the request when no bytes arrive for the idle
// timeout. Every Read re-arms the timer, so steady progress keeps the
// stream alive indefinitely.
type watchdogBody struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
}

func (b *watchdogBody) Read(p []byte) (int, error) {
	b.timer.Reset(b.timeout)
	return b.rc.Read(p)
}

func (b *watchdogBody) Close() error {
	b.timer.Stop()
	b.cancel()
	return b.rc.Close()
}

func statusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(data, &body) == nil {
		se.Message = body.Error
	}
	return se
}
