package grant

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaward-systems/fleetgate/gate/internal/blobstore"
)

func newTestIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "agent.sh"), []byte("#!/bin/sh\n"), 0o644))

	store, err := blobstore.NewDiskStore(root)
	require.NoError(t, err)

	return NewIssuer(store, "grant-secret", ttl, "http://gate.example.com")
}

func tokenFromURL(t *testing.T, downloadURL string) string {
	t.Helper()
	u, err := url.Parse(downloadURL)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestIssueAndRedeem(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	ctx := context.Background()

	g, err := issuer.Issue(ctx, "rpi-abc", "agent.sh")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(g.DownloadURL, "http://gate.example.com/api/v1/files/agent.sh?token="))
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), g.ExpiresAt, 5*time.Second)

	deviceID, err := issuer.Redeem(ctx, "agent.sh", tokenFromURL(t, g.DownloadURL))
	require.NoError(t, err)
	assert.Equal(t, "rpi-abc", deviceID)
}

func TestIssueMissingObject(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)

	_, err := issuer.Issue(context.Background(), "rpi-abc", "missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemIsSingleUse(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	ctx := context.Background()

	g, err := issuer.Issue(ctx, "rpi-abc", "agent.sh")
	require.NoError(t, err)
	token := tokenFromURL(t, g.DownloadURL)

	_, err = issuer.Redeem(ctx, "agent.sh", token)
	require.NoError(t, err)

	_, err = issuer.Redeem(ctx, "agent.sh", token)
	assert.ErrorIs(t, err, ErrGrantInvalid)
}

func TestRedeemExpired(t *testing.T) {
	issuer := newTestIssuer(t, -time.Minute)
	ctx := context.Background()

	g, err := issuer.Issue(ctx, "rpi-abc", "agent.sh")
	require.NoError(t, err)

	_, err = issuer.Redeem(ctx, "agent.sh", tokenFromURL(t, g.DownloadURL))
	assert.ErrorIs(t, err, ErrGrantInvalid)
}

func TestRedeemWrongFileKey(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	ctx := context.Background()

	g, err := issuer.Issue(ctx, "rpi-abc", "agent.sh")
	require.NoError(t, err)

	_, err = issuer.Redeem(ctx, "different.bin", tokenFromURL(t, g.DownloadURL))
	assert.ErrorIs(t, err, ErrGrantInvalid)
}

func TestRedeemTamperedToken(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	ctx := context.Background()

	g, err := issuer.Issue(ctx, "rpi-abc", "agent.sh")
	require.NoError(t, err)
	token := tokenFromURL(t, g.DownloadURL)

	_, err = issuer.Redeem(ctx, "agent.sh", token[:len(token)-2])
	assert.ErrorIs(t, err, ErrGrantInvalid)
}
