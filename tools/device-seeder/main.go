// Command device-seeder populates a gate's device registry with realistic
// test devices via the admin API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	gateURL    = flag.String("gate-url", "http://localhost:8443", "Gate endpoint URL")
	adminToken = flag.String("token", "", "Admin API token (required)")
	count      = flag.Int("count", 25, "Number of devices to register")
	interval   = flag.Duration("interval", 50*time.Millisecond, "Interval between registrations")
	inactive   = flag.Float64("inactive-ratio", 0.1, "Fraction of devices registered as inactive")
)

var deviceTypes = []string{"raspberry_pi", "gateway", "sensor_hub", "kiosk"}

type device struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func main() {
	flag.Parse()

	if *adminToken == "" {
		log.Fatal("Admin token is required. Use -token flag")
	}

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting device seeder:")
	log.Printf("  Gate URL: %s", *gateURL)
	log.Printf("  Device count: %d", *count)
	log.Printf("  Inactive ratio: %.2f", *inactive)

	client := &http.Client{Timeout: 10 * time.Second}

	successCount := 0
	failCount := 0

	for i := 0; i < *count; i++ {
		d := generateDevice()
		if err := register(client, d); err != nil {
			log.Printf("Failed to register %s: %v", d.ID, err)
			failCount++
		} else {
			successCount++
		}

		if *interval > 0 && i < *count-1 {
			time.Sleep(*interval)
		}
	}

	log.Printf("\nSeeding complete:")
	log.Printf("  Success: %d devices", successCount)
	log.Printf("  Failed: %d devices", failCount)
}

func generateDevice() device {
	serial := fmt.Sprintf("10000000%08x", rand.Int31())
	return device{
		ID:     serial,
		Name:   fmt.Sprintf("%s %s", gofakeit.City(), gofakeit.AppName()),
		Type:   deviceTypes[rand.Intn(len(deviceTypes))],
		Active: rand.Float64() >= *inactive,
	}
}

func register(client *http.Client, d device) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, *gateURL+"/api/v1/devices", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+*adminToken)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gate returned %d", resp.StatusCode)
	}
	return nil
}
