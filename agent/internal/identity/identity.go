// Package identity derives the stable device identifier the agent signs
// requests with. On a Raspberry Pi the SoC serial is the identity; boxes
// without one fall back to the primary MAC, then to a generated ID that is
// persisted so it survives restarts.
package identity

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultCPUInfoPath = "/proc/cpuinfo"
	defaultMACPath     = "/sys/class/net/eth0/address"
)

// Provider resolves the device ID from hardware sources with a persisted
// fallback.
type Provider struct {
	cpuInfoPath string
	macPath     string
	idFile      string
}

// New creates a provider using the standard hardware paths. The fallback ID
// file lives in the user's home directory.
func New() *Provider {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Provider{
		cpuInfoPath: defaultCPUInfoPath,
		macPath:     defaultMACPath,
		idFile:      filepath.Join(home, ".device_id"),
	}
}

// NewWithPaths creates a provider with explicit source paths.
func NewWithPaths(cpuInfoPath, macPath, idFile string) *Provider {
	return &Provider{cpuInfoPath: cpuInfoPath, macPath: macPath, idFile: idFile}
}

// DeviceID resolves the identifier, trying the SoC serial, then the MAC
// address, then the persisted fallback. A fallback ID is minted and saved
// on first use.
func (p *Provider) DeviceID() (string, error) {
	if serial, ok := p.readSerial(); ok {
		return serial, nil
	}

	if mac, ok := p.readMAC(); ok {
		return "mac-" + mac, nil
	}

	return p.persistedID()
}

func (p *Provider) readSerial() (string, bool) {
	f, err := os.Open(p.cpuInfoPath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Serial") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		serial := strings.TrimSpace(value)
		if serial != "" {
			return serial, true
		}
	}
	return "", false
}

func (p *Provider) readMAC() (string, bool) {
	data, err := os.ReadFile(p.macPath)
	if err != nil {
		return "", false
	}
	mac := strings.ReplaceAll(strings.TrimSpace(string(data)), ":", "")
	return mac, mac != ""
}

func (p *Provider) persistedID() (string, error) {
	if data, err := os.ReadFile(p.idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := "rpi-" + uuid.New().String()
	if err := os.WriteFile(p.idFile, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
