package feed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/ernie/isle-tracker/internal/domain"
)

const queueGroup = "isle-bounty"

// KillCreditor applies a pushed kill to the ledger
type KillCreditor interface {
	CreditPushedKill(ctx context.Context, k domain.KillEvent) (bool, error)
}

// Ack is the reply sent to publishers that ask for one
type Ack struct {
	KillID   int64  `json:"kill_id"`
	Credited bool   `json:"credited"`
	Error    string `json:"error,omitempty"`
}

// Subscriber feeds kills published on the bus into the engine. Instances
// share a queue group so each kill is handled by one process.
type Subscriber struct {
	nc       *nats.Conn
	subject  string
	creditor KillCreditor
	sub      *nats.Subscription
}

// NewSubscriber creates a subscriber for subject
func NewSubscriber(nc *nats.Conn, subject string, creditor KillCreditor) *Subscriber {
	return &Subscriber{nc: nc, subject: subject, creditor: creditor}
}

// Start subscribes. Messages are handled until Stop.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, queueGroup, func(m *nats.Msg) {
		s.handle(ctx, m)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Listening for kills on %s", s.subject)
	return nil
}

// Stop drains the subscription
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Subscriber) handle(ctx context.Context, m *nats.Msg) {
	var k domain.KillEvent
	if err := json.Unmarshal(m.Data, &k); err != nil {
		log.Printf("Discarding malformed kill on %s: %v", m.Subject, err)
		s.reply(m, Ack{Error: "malformed kill event"})
		return
	}

	ack := Ack{KillID: k.ID}
	credited, err := s.creditor.CreditPushedKill(ctx, k)
	if err != nil {
		log.Printf("Error crediting pushed kill %d: %v", k.ID, err)
		ack.Error = err.Error()
	}
	ack.Credited = credited
	s.reply(m, ack)
}

func (s *Subscriber) reply(m *nats.Msg, ack Ack) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := m.Respond(data); err != nil {
		log.Printf("Warning: replying to %s: %v", m.Reply, err)
	}
}
