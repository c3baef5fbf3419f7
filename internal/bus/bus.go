// Package bus abstracts the message-bus transport this subsystem consumes
// from and publishes to, over NATS subjects that stand in for the original
// AMQP exchange/routing-key pairs of spec.md S6:
//
//	scheduler.task.start / scheduler.task.end          (in)
//	tracking.orbit.rpc.<op>                            (in, request/reply)
//	event.next_pass / event.preaos / event.aos / event.los  (out)
//	tracking.target.position                           (out)
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/groundstation/rotorctl/internal/observability"
)

// Config mirrors the teacher's BridgeConfig shape.
type Config struct {
	NATSURL        string
	ReconnectWait  time.Duration
	MaxReconnects  int
	PingInterval   time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		NATSURL:        "nats://localhost:4222",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  60,
		PingInterval:   30 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// Handler processes one decoded bus message. Returning an error causes the
// caller to log it and drop the message (spec.md S7 "Bus parse error").
type Handler func(ctx context.Context, subject string, payload map[string]any) error

// Bus wraps a NATS connection with the publish/subscribe/request surface
// this subsystem needs, grounded on the teacher's realtime.Bridge.
type Bus struct {
	nc  *nats.Conn
	cfg Config

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS with reconnect/ping options mirroring the teacher's
// NewBridge.
func Connect(cfg Config) (*Bus, error) {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.PingInterval(cfg.PingInterval),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[Bus] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("[Bus] disconnected: %v", err)
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Printf("[Bus] error: %v", err)
		}),
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", cfg.NATSURL, err)
	}
	return &Bus{nc: nc, cfg: cfg}, nil
}

// Publish marshals payload as JSON and publishes it to subject.
func (b *Bus) Publish(subject string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal for %s: %w", subject, err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("bus: publish %s: %w", subject, err)
	}
	observability.RecordBusPublished(subject)
	return nil
}

// Subscribe registers handler for subject. Messages that fail to unmarshal
// are logged and dropped; handler errors are likewise logged, never
// propagated to the NATS client (spec.md S7).
func (b *Bus) Subscribe(subject string, handler Handler) error {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var payload map[string]any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Printf("[Bus] failed to unmarshal message on %s: %v", msg.Subject, err)
			return
		}
		observability.RecordBusReceived(msg.Subject)
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout)
		defer cancel()
		if err := handler(ctx, msg.Subject, payload); err != nil {
			log.Printf("[Bus] handler error on %s: %v", msg.Subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// SubscribeRPC registers a request/reply handler for subject: the handler's
// returned payload is marshaled and sent back on msg.Reply. This backs the
// tracking.orbit.rpc.<op> surface of spec.md S6.
func (b *Bus) SubscribeRPC(subject string, handler func(ctx context.Context, op string, payload map[string]any) map[string]any) error {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var payload map[string]any
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Printf("[Bus] failed to unmarshal RPC on %s: %v", msg.Subject, err)
			return
		}
		observability.RecordBusReceived(msg.Subject)
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.RequestTimeout)
		defer cancel()

		reply := handler(ctx, msg.Subject, payload)
		data, err := json.Marshal(reply)
		if err != nil {
			log.Printf("[Bus] failed to marshal RPC reply on %s: %v", msg.Subject, err)
			return
		}
		if msg.Reply != "" {
			if err := b.nc.Publish(msg.Reply, data); err != nil {
				log.Printf("[Bus] failed to send RPC reply on %s: %v", msg.Subject, err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe RPC %s: %w", subject, err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Request sends payload to subject and waits for one reply, honoring the
// caller's timeout (e.g. the 15s/5s timeouts of the rotator driver RPC
// surface, spec.md S6).
func (b *Bus) Request(ctx context.Context, subject string, payload map[string]any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bus: marshal request for %s: %w", subject, err)
	}
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("bus: request %s: %w", subject, err)
	}
	var reply map[string]any
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("bus: unmarshal reply from %s: %w", subject, err)
	}
	return reply, nil
}

// IsConnected reports whether the underlying NATS connection is up.
func (b *Bus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close unsubscribes everything and closes the underlying connection,
// mirroring the teacher's Bridge.Stop.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[Bus] error unsubscribing: %v", err)
		}
	}
	b.subs = nil
	if b.nc != nil {
		b.nc.Close()
	}
}
