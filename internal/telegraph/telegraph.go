package telegraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Notifier fans an alert out to every configured adapter. A Notifier with
// no adapters accepts and drops everything.
type Notifier struct {
	adapters []Adapter
	log      *zap.SugaredLogger

	mu        sync.Mutex
	connected bool
}

// NewNotifier returns a Notifier over adapters. Nil adapters are skipped.
func NewNotifier(adapters ...Adapter) *Notifier {
	n := &Notifier{log: zap.S().Named("telegraph")}
	for _, a := range adapters {
		if a != nil {
			n.adapters = append(n.adapters, a)
		}
	}
	return n
}

// Enabled reports whether any adapter is configured.
func (n *Notifier) Enabled() bool { return len(n.adapters) > 0 }

// Connect connects every adapter. It stops at the first failure and closes
// the adapters already connected.
func (n *Notifier) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connected {
		return nil
	}
	for i, a := range n.adapters {
		if err := a.Connect(ctx); err != nil {
			for _, prev := range n.adapters[:i] {
				_ = prev.Close()
			}
			return fmt.Errorf("telegraph: connect %s: %w", a.Name(), err)
		}
	}
	n.connected = true
	return nil
}

// Notify sends msg to every adapter. Delivery continues past a failing
// adapter; the returned error joins every failure.
func (n *Notifier) Notify(ctx context.Context, msg OutboundMessage) error {
	if !n.Enabled() {
		return nil
	}
	if err := n.Connect(ctx); err != nil {
		return err
	}
	var errs []error
	for _, a := range n.adapters {
		if err := a.Send(ctx, msg); err != nil {
			n.log.Warnw("alert delivery failed", "platform", a.Name(), "error", err)
			errs = append(errs, fmt.Errorf("telegraph: send via %s: %w", a.Name(), err))
			continue
		}
		n.log.Debugw("alert delivered", "platform", a.Name(), "events", len(msg.Events))
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = false
	var errs []error
	for _, a := range n.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("telegraph: close %s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
