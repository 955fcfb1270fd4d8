package geo

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubResolver struct {
	code string
	err  error
}

func (s *stubResolver) CountryCode(ip net.IP) (string, error) {
	return s.code, s.err
}

func (s *stubResolver) Close() error { return nil }

func TestFilterAllowsListedCountry(t *testing.T) {
	f := NewFilter(&stubResolver{code: "DE"}, []string{"de", "NL"})
	assert.True(t, f.IsAllowed("93.184.216.34"))
}

func TestFilterDeniesUnlistedCountry(t *testing.T) {
	f := NewFilter(&stubResolver{code: "KP"}, []string{"DE", "NL"})
	assert.False(t, f.IsAllowed("93.184.216.34"))
}

func TestFilterFailOpen(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
		ip       string
	}{
		{
			name:     "no database",
			resolver: nil,
			ip:       "93.184.216.34",
		},
		{
			name:     "lookup error",
			resolver: &stubResolver{err: errors.New("corrupt database")},
			ip:       "93.184.216.34",
		},
		{
			name:     "no country resolved",
			resolver: &stubResolver{code: ""},
			ip:       "10.0.0.1",
		},
		{
			name:     "unparseable IP",
			resolver: &stubResolver{code: "DE"},
			ip:       "not-an-ip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.resolver, []string{"DE"})
			assert.True(t, f.IsAllowed(tt.ip), "fail-open invariant")
		})
	}
}

func TestFilterEmptyAllowListPassesAll(t *testing.T) {
	f := NewFilter(&stubResolver{code: "KP"}, nil)
	assert.True(t, f.IsAllowed("93.184.216.34"))
}
