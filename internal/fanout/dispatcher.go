// Package fanout translates committed store mutations into addressed
// event-channel deliveries. Routing is by role and watched trip:
//
//	trip.location, trip.delay    -> admins, the trip's watchers, and the
//	                                owning driver's own dashboards (echo)
//	incident.reported            -> admins only
//	reservation.created/cancelled -> admins and agents watching that trip
//
// Deliveries are deduplicated per subscriber by idempotency key so a
// producer's other-device sessions never see the same logical operation
// twice.
package fanout

import (
	"context"
	"sync"

	"bus-ops/internal/domain"
	"bus-ops/internal/eventbus"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/logger"
)

const dispatchBuffer = 1024

type registration struct {
	userID    string
	role      auth.Role
	watchTrip string
	seen      *keyRing
}

type Dispatcher struct {
	bus    *eventbus.Bus
	log    logger.Logger
	events chan domain.Event

	mu   sync.Mutex
	subs map[string]*registration
}

func New(bus *eventbus.Bus, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		bus:    bus,
		log:    log,
		events: make(chan domain.Event, dispatchBuffer),
		subs:   make(map[string]*registration),
	}
}

// Emit hands a committed event to the dispatcher. The mutation has
// already been applied by the time this runs; delivery happens on the
// dispatcher's own goroutine so writers never wait on subscribers.
func (d *Dispatcher) Emit(ev domain.Event) {
	d.events <- ev
}

// Run drains the dispatch queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.route(ev)
		}
	}
}

// Register subscribes a dashboard session. id identifies the session,
// userID the authenticated user behind it, watchTrip an optional trip
// the session is viewing (empty for none). Re-registering an id
// replaces the previous session, mirroring a reconnect.
func (d *Dispatcher) Register(id, userID string, role auth.Role, watchTrip string) *eventbus.Subscription {
	d.mu.Lock()
	d.subs[id] = &registration{
		userID:    userID,
		role:      role,
		watchTrip: watchTrip,
		seen:      newKeyRing(dedupWindow),
	}
	d.mu.Unlock()
	return d.bus.Subscribe(id)
}

// Unregister removes a session immediately. Events already committed and
// buffered for the session remain readable until its channel drains.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	delete(d.subs, id)
	d.mu.Unlock()
	d.bus.Unsubscribe(id)
}

func (d *Dispatcher) route(ev domain.Event) {
	targets := d.targets(ev)
	for _, id := range targets {
		d.bus.Send(id, ev)
	}
}

// targets computes the recipient sessions for an event and marks the
// event's idempotency key as seen for each, skipping sessions that
// already received it.
func (d *Dispatcher) targets(ev domain.Event) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for id, reg := range d.subs {
		if !d.addressed(ev, reg) {
			continue
		}
		if key := ev.IdempotencyKey(); key != "" && !reg.seen.remember(key) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) addressed(ev domain.Event, reg *registration) bool {
	if reg.role == auth.RoleAdmin {
		return true
	}
	switch e := ev.(type) {
	case domain.TripLocationEvent:
		return reg.watchTrip == e.TripID() ||
			(reg.role == auth.RoleDriver && reg.userID == e.DriverID)
	case domain.TripDelayEvent:
		return reg.watchTrip == e.TripID() ||
			(reg.role == auth.RoleDriver && reg.userID == e.DriverID)
	case domain.IncidentReportedEvent:
		return false // admins only, handled above
	case domain.ReservationCreatedEvent:
		// Manifest data stays off public trackers.
		return reg.watchTrip == e.TripID() && reg.role == auth.RoleAgent
	case domain.ReservationCancelledEvent:
		return reg.watchTrip == e.TripID() && reg.role == auth.RoleAgent
	}
	return false
}
