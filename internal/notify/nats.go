package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-engine/internal/models"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "auction.events."

// natsPublisher is the part of *nats.Conn the transport uses
type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSTransport publishes events on "auction.events.{topic}" for downstream
// consumers such as archival or analytics workers.
type NATSTransport struct {
	conn natsPublisher
}

// ConnectNATS dials a NATS server
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("auction-engine"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSTransport wraps a NATS connection
func NewNATSTransport(conn natsPublisher) *NATSTransport {
	return &NATSTransport{conn: conn}
}

// Name implements Transport
func (t *NATSTransport) Name() string { return "nats" }

// Deliver implements Transport. Core NATS publish is fire-and-forget, which
// matches the bus's at-most-once contract.
func (t *NATSTransport) Deliver(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := t.conn.Publish(natsSubjectPrefix+string(event.Topic), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", event.Topic, err)
	}
	return nil
}
