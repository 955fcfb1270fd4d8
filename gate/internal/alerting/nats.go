package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectSecurityAlerts is the NATS subject security alerts publish to.
const SubjectSecurityAlerts = "fleetgate.alerts.security"

// NATSPublisher publishes alerts to a NATS subject for downstream
// notification services (mail, SMS, paging).
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("fleetgate-gate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, alert *Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := p.conn.Publish(SubjectSecurityAlerts, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}
