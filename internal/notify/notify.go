// Package notify announces new snapshots on NATS so downstream consumers can
// refresh without polling the store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"braindrain/internal/storage"
)

// DefaultSubject is the subject snapshot announcements are published on.
const DefaultSubject = "braindrain.snapshot"

// Announcement is the message body published for each snapshot.
type Announcement struct {
	ID       int64          `json:"id"`
	TakenAt  time.Time      `json:"taken_at"`
	Year     int            `json:"year"`
	States   int            `json:"states"`
	Segments map[string]int `json:"segments"`
}

// NewAnnouncement summarises snap for publication.
func NewAnnouncement(snap *storage.Snapshot) Announcement {
	a := Announcement{
		ID:       snap.ID,
		TakenAt:  snap.TakenAt.UTC(),
		Year:     snap.Year,
		States:   len(snap.Table.Records),
		Segments: make(map[string]int),
	}
	for i := range snap.Table.Records {
		a.Segments[snap.Table.Records[i].Segment.String()]++
	}
	return a
}

// Publisher sends announcements to a NATS server.
type Publisher struct {
	nc      *nats.Conn
	subject string
	log     *zap.Logger
}

// Connect dials the NATS server at url. An empty subject selects
// DefaultSubject.
func Connect(url, subject string, log *zap.Logger) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = zap.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.Name("braindrain"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &Publisher{nc: nc, subject: subject, log: log}, nil
}

// PublishSnapshot announces snap and waits for the server to acknowledge
// the write.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap *storage.Snapshot) error {
	body, err := json.Marshal(NewAnnouncement(snap))
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}
	if err := p.nc.Publish(p.subject, body); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	p.log.Info("snapshot announced",
		zap.String("subject", p.subject),
		zap.Int64("snapshot_id", snap.ID))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
