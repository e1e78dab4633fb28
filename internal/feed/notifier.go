package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ernie/isle-tracker/internal/domain"
)

// Notifier publishes ledger events under a subject prefix:
//
//	<prefix>.credited            a kill was credited
//	<prefix>.contract.<status>   a contract was placed or changed state
//
// Every message carries a unique Nats-Msg-Id so a JetStream consumer can
// drop redeliveries.
type Notifier struct {
	nc     *nats.Conn
	prefix string
}

// NewNotifier creates a notifier
func NewNotifier(nc *nats.Conn, prefix string) *Notifier {
	return &Notifier{nc: nc, prefix: prefix}
}

// PublishCredit announces a credited kill
func (n *Notifier) PublishCredit(_ context.Context, ev domain.CreditEvent) error {
	return n.publish(n.prefix+".credited", ev)
}

// PublishContract announces a contract change
func (n *Notifier) PublishContract(_ context.Context, c domain.Contract) error {
	return n.publish(fmt.Sprintf("%s.contract.%s", n.prefix, c.Status), c)
}

func (n *Notifier) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Data = data
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	return nil
}
