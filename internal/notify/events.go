package notify

import (
	"context"
	"fmt"
	"time"
)

// Publisher sends a JSON payload to a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// LifecycleEvent is the message published for each notification.
type LifecycleEvent struct {
	Notification
	OccurredAt time.Time `json:"occurred_at"`
}

// EventDispatcher publishes notifications as registration.<kind> events for downstream consumers
// such as account provisioning.
type EventDispatcher struct {
	pub Publisher
	now func() time.Time
}

// NewEventDispatcher creates a dispatcher publishing to pub.
func NewEventDispatcher(pub Publisher) *EventDispatcher {
	return &EventDispatcher{pub: pub, now: time.Now}
}

// RoutingKey returns the topic routing key for a kind.
func RoutingKey(k Kind) string { return "registration." + string(k) }

func (d *EventDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if n.Kind == KindAdminNewRegistration {
		return nil
	}
	ev := LifecycleEvent{Notification: n, OccurredAt: d.now().UTC()}
	// tokens never leave the process on the bus
	if _, ok := n.Context["confirm_url"]; ok {
		ev.Context = make(map[string]string, len(n.Context))
		for k, v := range n.Context {
			if k != "confirm_url" {
				ev.Context[k] = v
			}
		}
	}
	if err := d.pub.Publish(ctx, RoutingKey(n.Kind), ev); err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}
