package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaward-systems/fleetgate/common/signing"
	"github.com/seaward-systems/fleetgate/gate/internal/admission"
	"github.com/seaward-systems/fleetgate/gate/internal/alerting"
	"github.com/seaward-systems/fleetgate/gate/internal/blobstore"
	"github.com/seaward-systems/fleetgate/gate/internal/geo"
	"github.com/seaward-systems/fleetgate/gate/internal/grant"
	"github.com/seaward-systems/fleetgate/gate/internal/handlers"
	"github.com/seaward-systems/fleetgate/gate/internal/models"
	"github.com/seaward-systems/fleetgate/gate/internal/ratelimit"
	"github.com/seaward-systems/fleetgate/gate/internal/repository"
)

const (
	testSecret     = "gate-router-test-secret"
	testAdminToken = "router-test-admin-token"
	testDeviceID   = "rpi-router-test"
)

type denyAllFilter struct{}

func (denyAllFilter) IsAllowed(string) bool { return false }

type fixture struct {
	server *httptest.Server
	signer *signing.Signer
	repo   repository.Repository
}

// newFixture wires the full gate stack against a temp disk store holding
// sensor.bin, with one active registered device.
func newFixture(t *testing.T, filter admission.LocationFilter) *fixture {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sensor.bin"), []byte("firmware payload"), 0o644))

	store, err := blobstore.NewDiskStore(dir)
	require.NoError(t, err)

	repo := repository.NewInMemoryRepository()
	require.NoError(t, repo.CreateDevice(t.Context(), &models.Device{
		ID:        testDeviceID,
		Name:      "Router Test Device",
		Type:      "raspberry_pi",
		Active:    true,
		CreatedAt: time.Now(),
	}))

	signer := signing.New(testSecret)
	issuer := grant.NewIssuer(store, testSecret, 30*time.Minute, "http://gate.test")
	tracker := ratelimit.NewMemoryTracker(5, time.Hour)
	if filter == nil {
		filter = geo.NewFilter(nil, nil)
	}
	pipeline := admission.NewPipeline(signer, filter, tracker, issuer, repo, &alerting.LogPublisher{}, 5*time.Minute)

	h := handlers.New(pipeline, issuer, store, repo, signer, 5*time.Minute, testAdminToken)
	srv := httptest.NewServer(NewRouter(h, nil))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { tracker.Close() })

	return &fixture{server: srv, signer: signer, repo: repo}
}

func (f *fixture) requestDownload(t *testing.T, req models.DownloadRequest) *http.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+"/api/v1/request-download", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func (f *fixture) signedRequest(fileKey string) models.DownloadRequest {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return models.DownloadRequest{
		DeviceID:  testDeviceID,
		Timestamp: ts,
		Signature: f.signer.Sign(testDeviceID, ts),
		FileKey:   fileKey,
	}
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestRequestDownloadAndRetrieve(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.requestDownload(t, f.signedRequest("sensor.bin"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var granted models.DownloadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&granted))
	resp.Body.Close()

	assert.WithinDuration(t, time.Now().Add(30*time.Minute), granted.ExpiresAt, time.Minute)

	// The locator is minted against the configured base URL; replay its
	// path and token against the test server.
	loc, err := url.Parse(granted.DownloadURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/files/sensor.bin", loc.Path)

	dl, err := http.Get(f.server.URL + loc.Path + "?" + loc.RawQuery)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "application/octet-stream", dl.Header.Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(len("firmware payload")), dl.Header.Get("Content-Length"))

	sum := sha256.Sum256([]byte("firmware payload"))
	assert.Equal(t, hex.EncodeToString(sum[:]), dl.Header.Get("X-Content-SHA256"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "firmware payload", buf.String())
}

func TestGrantIsSingleUse(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.requestDownload(t, f.signedRequest("sensor.bin"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var granted models.DownloadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&granted))
	resp.Body.Close()

	loc, err := url.Parse(granted.DownloadURL)
	require.NoError(t, err)
	target := f.server.URL + loc.Path + "?" + loc.RawQuery

	first, err := http.Get(target)
	require.NoError(t, err)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(target)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, second.StatusCode)
	second.Body.Close()
}

func TestRequestDownloadDeniedByLocation(t *testing.T) {
	f := newFixture(t, denyAllFilter{})

	resp := f.requestDownload(t, f.signedRequest("sensor.bin"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Access denied by location", decodeError(t, resp))
}

func TestRequestDownloadBadSignatureThenRateLimited(t *testing.T) {
	f := newFixture(t, nil)

	bad := f.signedRequest("sensor.bin")
	bad.Signature = "deadbeef"

	for i := 0; i < 4; i++ {
		resp := f.requestDownload(t, bad)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "attempt %d", i+1)
		resp.Body.Close()
	}

	// The fifth failure exhausts the budget.
	resp := f.requestDownload(t, bad)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// Even a correctly signed request is refused while over budget.
	resp = f.requestDownload(t, f.signedRequest("sensor.bin"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestDownloadMissingFile(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.requestDownload(t, f.signedRequest("no-such-file.bin"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestListFiles(t *testing.T) {
	f := newFixture(t, nil)

	req := f.signedRequest("")
	target := fmt.Sprintf("%s/api/v1/files?device_id=%s&timestamp=%s&signature=%s",
		f.server.URL, req.DeviceID, req.Timestamp, req.Signature)

	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing models.ListFilesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Files, 1)
	assert.Equal(t, "sensor.bin", listing.Files[0].FileKey)
	assert.Equal(t, int64(len("firmware payload")), listing.Files[0].Size)
	assert.NotEmpty(t, listing.Files[0].SHA256)
	assert.Equal(t, "Router Test Device", listing.Device.Name)
}

func TestListFilesUnknownDevice(t *testing.T) {
	f := newFixture(t, nil)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	target := fmt.Sprintf("%s/api/v1/files?device_id=%s&timestamp=%s&signature=%s",
		f.server.URL, "rpi-unknown", ts, f.signer.Sign("rpi-unknown", ts))

	resp, err := http.Get(target)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminDevices(t *testing.T) {
	f := newFixture(t, nil)

	body, err := json.Marshal(models.Device{ID: "rpi-new", Name: "New Device", Type: "raspberry_pi", Active: true})
	require.NoError(t, err)

	// Without the token the admin surface is closed.
	resp, err := http.Post(f.server.URL+"/api/v1/devices", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/devices", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	req, err = http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/devices", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Devices []*models.Device `json:"devices"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	assert.Equal(t, 2, listing.Count)
}

func TestAdminSecurityEvents(t *testing.T) {
	f := newFixture(t, nil)

	bad := f.signedRequest("sensor.bin")
	bad.Signature = "deadbeef"
	resp := f.requestDownload(t, bad)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var feed struct {
		Events []*models.SecurityEvent `json:"events"`
		Count  int                     `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	require.Equal(t, 1, feed.Count)
	assert.Equal(t, models.EventInvalidSignature, feed.Events[0].EventType)
	assert.Equal(t, testDeviceID, feed.Events[0].DeviceID)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(f.server.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}

	resp, err := http.Get(f.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var banner map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&banner))
	assert.Equal(t, "fleetgate", banner["service"])
	assert.Equal(t, "running", banner["status"])
}
