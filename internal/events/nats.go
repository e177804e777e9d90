package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientName identifies odrlfrag connections on the NATS server.
const ClientName = "odrlfrag"

const (
	flushTimeout = 5 * time.Second
	// pending is how many undelivered messages a subscription holds before
	// the server marks it a slow consumer and drops.
	pending = 64
)

func connect(url string, defaults, extra []nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{nats.Name(ClientName)}, defaults...)
	nc, err := nats.Connect(url, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the server at url. Publishing is one-shot
// from the CLI, so the connection does not retry.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, []nats.Option{nats.NoReconnect()}, opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends ev on its topic and waits for the server round trip, so a
// process that exits right after still delivers it.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", ev.Topic(), err)
	}
	if err := p.conn.Publish(ev.Topic(), data); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Topic(), err)
	}
	// FlushWithContext rejects contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing %s: %w", ev.Topic(), err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives events for long-running watchers and reconnects
// without limit.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, []nats.Option{nats.MaxReconnects(-1), nats.ReconnectWait(time.Second)}, opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	raw := make(chan *nats.Msg, pending)
	sub, err := s.conn.ChanSubscribe(topic, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Events published by other connections are only routed here once the
	// server has seen the subscription.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", topic, err)
	}

	out := make(chan Message)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case m := <-raw:
				select {
				case out <- Message{Subject: m.Subject, Data: m.Data}:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}
	return out, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
