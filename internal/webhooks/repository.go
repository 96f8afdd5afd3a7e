package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Repository provides persistence for webhook subscriptions and deliveries.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new webhook Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new webhook subscription.
func (r *Repository) Create(ctx context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	query := `INSERT INTO webhook_subscriptions (id, created_by, url, events, secret, active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.CreatedBy, sub.URL, sub.Events, sub.Secret, sub.Active, sub.CreatedAt,
	)
	return err
}

// GetByID retrieves a subscription by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	query := `SELECT id, created_by, url, events, secret, active, created_at
	          FROM webhook_subscriptions WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)

	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.CreatedBy, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// List returns all subscriptions, newest first.
func (r *Repository) List(ctx context.Context) ([]*Subscription, error) {
	query := `SELECT id, created_by, url, events, secret, active, created_at
	          FROM webhook_subscriptions ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.CreatedBy, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// ListByEvent returns all active subscriptions listening for a given event type.
func (r *Repository) ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error) {
	query := `SELECT id, created_by, url, events, secret, active, created_at
	          FROM webhook_subscriptions
	          WHERE active = true AND $1 = ANY(events)
	          ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.CreatedBy, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// Delete removes a subscription.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery records a webhook delivery attempt.
func (r *Repository) RecordDelivery(ctx context.Context, d *Delivery) error {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()

	query := `INSERT INTO webhook_deliveries (id, subscription_id, event_type, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.EventType,
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}
