// Package audit persists an append-only trail of operational events to
// Postgres. It consumes the event channel like any other subscriber, so
// persistence never sits on the mutation path.
package audit

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"bus-ops/internal/domain"
	"bus-ops/internal/eventbus"
	"bus-ops/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

type Repository struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

func NewRepository(pool *pgxpool.Pool, log logger.Logger) *Repository {
	return &Repository{pool: pool, log: log}
}

// EnsureSchema applies the audit tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply audit schema: %w", err)
	}
	return nil
}

// Run consumes events from sub until the subscription closes or ctx is
// cancelled. Insert conflicts on the idempotency key are ignored, which
// absorbs at-least-once delivery.
func (r *Repository) Run(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return
		case ev, ok := <-sub.Events():
			if !ok {
				r.log.Info("audit_resync", "audit subscription closed, consumer must re-register")
				return
			}
			if err := r.record(ctx, ev); err != nil {
				r.log.Error("audit_write_failed", err)
			}
		}
	}
}

func (r *Repository) record(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.IncidentReportedEvent:
		return r.RecordIncident(ctx, e)
	case domain.ReservationCreatedEvent:
		return r.RecordReservation(ctx, e)
	default:
		// Location and delay events are high-volume and not audited.
		return nil
	}
}

func (r *Repository) RecordIncident(ctx context.Context, ev domain.IncidentReportedEvent) error {
	inc := ev.Incident
	key := ev.Key
	if key == "" {
		key = inc.ID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO incident_audit
		   (idempotency_key, incident_id, trip_id, reporter_id, reporter_role, incident_type, severity, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		key, inc.ID, inc.TripID, inc.ReporterID, inc.ReporterRole,
		string(inc.Type), string(inc.Severity), inc.Description, inc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record incident %s: %w", inc.ID, err)
	}
	return nil
}

func (r *Repository) RecordReservation(ctx context.Context, ev domain.ReservationCreatedEvent) error {
	res := ev.Reservation
	key := ev.Key
	if key == "" {
		key = res.ID
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reservation_audit
		   (idempotency_key, reservation_id, trip_id, seat, passenger_name, amount, status, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		key, res.ID, res.TripID, res.Seat, res.PassengerName,
		res.Amount, string(res.Status), res.CreatedBy, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record reservation %s: %w", res.ID, err)
	}
	return nil
}

// RecordValidation persists a passenger-list validation record. The
// unique (trip, validator, day) constraint mirrors the store's
// idempotency rule.
func (r *Repository) RecordValidation(ctx context.Context, rec domain.ValidationRecord) error {
	manifest, err := json.Marshal(rec.Manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO validation_records (id, trip_id, validator_id, service_day, validated_at, manifest)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (trip_id, validator_id, service_day) DO NOTHING`,
		rec.ID, rec.TripID, rec.ValidatorID, rec.ServiceDay, rec.ValidatedAt, manifest,
	)
	if err != nil {
		return fmt.Errorf("failed to record validation %s: %w", rec.ID, err)
	}
	return nil
}
