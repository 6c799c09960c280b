package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"bus-ops/internal/domain"
	"bus-ops/internal/fanout"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/logger"
	"bus-ops/pkg/rabbitmq"
)

// subscriberID identifies the bridge's dispatcher registration.
const subscriberID = "amqp-bridge"

// Bridge relays operational events to RabbitMQ so other nodes can
// consume them. It registers with the dispatcher as an admin
// subscriber, which addresses it with every event.
type Bridge struct {
	conn       *rabbitmq.Connection
	dispatcher *fanout.Dispatcher
	log        logger.Logger
}

func NewBridge(conn *rabbitmq.Connection, dispatcher *fanout.Dispatcher, log logger.Logger) *Bridge {
	return &Bridge{
		conn:       conn,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Run consumes dispatcher events until the subscription closes or the
// context is cancelled. A closed subscription means the bridge fell
// behind and was dropped; downstream consumers recover through the
// read projections, so the bridge just re-registers.
func (b *Bridge) Run(ctx context.Context) {
	for {
		sub := b.dispatcher.Register(subscriberID, subscriberID, auth.RoleAdmin, "")

		for ev := range sub.Events() {
			if ctx.Err() != nil {
				b.dispatcher.Unregister(subscriberID)
				return
			}
			b.publish(ctx, ev)
		}

		select {
		case <-ctx.Done():
			return
		default:
			b.log.Info("amqp_bridge_resubscribe", "Bridge dropped from event stream, re-registering")
		}
	}
}

func (b *Bridge) publish(ctx context.Context, ev domain.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("amqp_event_marshal_failed", err)
		return
	}

	key := fmt.Sprintf("%s.%s", ev.EventType(), ev.TripID())
	if err := b.conn.Publish(ctx, rabbitmq.ExchangeOpsTopic, key, body); err != nil {
		b.log.Error("amqp_publish_failed", err)
		return
	}

	// Location updates also fan out raw for map consumers.
	if ev.EventType() == domain.EventTripLocation {
		if err := b.conn.Publish(ctx, rabbitmq.ExchangeLocationFanout, "", body); err != nil {
			b.log.Error("amqp_publish_failed", err)
		}
	}
}
