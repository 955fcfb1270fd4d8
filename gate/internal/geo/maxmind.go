package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// MaxMindResolver resolves country codes from a GeoLite2/GeoIP2 country
// database file.
type MaxMindResolver struct {
	reader *maxminddb.Reader
}

// OpenMaxMind opens the .mmdb database at path.
func OpenMaxMind(path string) (*MaxMindResolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geo database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) CountryCode(ip net.IP) (string, error) {
	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := r.reader.Lookup(ip, &record); err != nil {
		return "", fmt.Errorf("geo lookup: %w", err)
	}
	return record.Country.ISOCode, nil
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
