// Package grant mints and redeems time-bounded download grants. A grant is
// an HS256 JWT carrying the device, file key and a single-use token ID; the
// locator it backs stops working at first redemption or at expiry, whichever
// comes first.
package grant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seaward-systems/fleetgate/gate/internal/blobstore"
)

var (
	// ErrNotFound is returned when the requested object does not exist in
	// the backing store.
	ErrNotFound = errors.New("file not found")

	// ErrGrantInvalid covers every redemption failure: bad signature,
	// expired token, or a token that was already redeemed. Redeemers get
	// no finer detail than this.
	ErrGrantInvalid = errors.New("invalid or expired grant")
)

type grantClaims struct {
	FileKey string `json:"file_key"`
	jwt.RegisteredClaims
}

// Issuer issues grants against a blob store and validates them on
// redemption.
type Issuer struct {
	store     blobstore.Store
	secretKey []byte
	ttl       time.Duration
	baseURL   string

	mu       sync.Mutex
	redeemed map[string]time.Time
}

// NewIssuer creates an issuer. baseURL is the externally reachable address
// of the gate service; ttl bounds grant lifetime.
func NewIssuer(store blobstore.Store, secretKey string, ttl time.Duration, baseURL string) *Issuer {
	return &Issuer{
		store:     store,
		secretKey: []byte(secretKey),
		ttl:       ttl,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		redeemed:  make(map[string]time.Time),
	}
}

// Grant is a minted retrieval locator.
type Grant struct {
	DownloadURL string
	FileKey     string
	DeviceID    string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Issue checks object existence and mints a grant for (device, file).
func (i *Issuer) Issue(ctx context.Context, deviceID, fileKey string) (*Grant, error) {
	if _, err := i.store.Stat(ctx, fileKey); err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", fileKey, err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(i.ttl)

	claims := grantClaims{
		FileKey: fileKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secretKey)
	if err != nil {
		return nil, fmt.Errorf("sign grant: %w", err)
	}

	return &Grant{
		DownloadURL: fmt.Sprintf("%s/api/v1/files/%s?token=%s", i.baseURL, fileKey, url.QueryEscape(token)),
		FileKey:     fileKey,
		DeviceID:    deviceID,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	}, nil
}

// Redeem validates a grant token for fileKey and burns its token ID. A
// second redemption of the same token fails.
func (i *Issuer) Redeem(ctx context.Context, fileKey, tokenString string) (deviceID string, err error) {
	var claims grantClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", ErrGrantInvalid
	}

	if claims.FileKey != fileKey || claims.ID == "" || claims.ExpiresAt == nil {
		return "", ErrGrantInvalid
	}

	if !i.burn(claims.ID, claims.ExpiresAt.Time) {
		return "", ErrGrantInvalid
	}

	return claims.Subject, nil
}

// burn marks a token ID redeemed. Returns false if it was already used.
// Entries are kept until their grant would have expired anyway, then pruned.
func (i *Issuer) burn(jti string, expiresAt time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	for id, exp := range i.redeemed {
		if exp.Before(now) {
			delete(i.redeemed, id)
		}
	}

	if _, used := i.redeemed[jti]; used {
		return false
	}
	i.redeemed[jti] = expiresAt
	return true
}
