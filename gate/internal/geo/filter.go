// Package geo filters requests by the country their source IP resolves to.
//
// The filter is deliberately fail-open: when the lookup database is missing,
// a lookup errors, or the IP resolves to no country, the request is allowed
// and a warning is logged. Availability is preferred over strictness here;
// tightening this policy is a config decision, not a code default.
package geo

import (
	"log/slog"
	"net"
	"strings"
)

// Resolver maps an IP address to an ISO 3166-1 alpha-2 country code.
type Resolver interface {
	CountryCode(ip net.IP) (string, error)
	Close() error
}

// Filter checks source IPs against a country allow-list.
type Filter struct {
	resolver Resolver
	allowed  map[string]struct{}
}

// NewFilter builds a filter over the given resolver. A nil resolver means no
// database is available and every request passes. An empty allow-list also
// passes everything.
func NewFilter(resolver Resolver, allowedCountries []string) *Filter {
	allowed := make(map[string]struct{}, len(allowedCountries))
	for _, c := range allowedCountries {
		allowed[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &Filter{
		resolver: resolver,
		allowed:  allowed,
	}
}

// IsAllowed reports whether the request from ipAddress may proceed.
func (f *Filter) IsAllowed(ipAddress string) bool {
	if f.resolver == nil || len(f.allowed) == 0 {
		return true
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		slog.Warn("geo check skipped: unparseable IP, allowing access",
			slog.String("ip", ipAddress))
		return true
	}

	code, err := f.resolver.CountryCode(ip)
	if err != nil {
		slog.Warn("geo lookup failed, allowing access",
			slog.String("ip", ipAddress),
			slog.String("error", err.Error()))
		return true
	}
	if code == "" {
		slog.Warn("geo lookup resolved no country, allowing access",
			slog.String("ip", ipAddress))
		return true
	}

	_, ok := f.allowed[code]
	return ok
}
