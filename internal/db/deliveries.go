package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Verdicts recorded for each delivery.
const (
	VerdictAccepted  = "accepted"
	VerdictDuplicate = "duplicate"
	VerdictRejected  = "rejected"
	VerdictError     = "error"
	VerdictFailed    = "processing_failed"
)

var ErrDeliveryNotFound = errors.New("delivery not found")

// Executor is the subset of pgxpool.Pool the store needs.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Delivery is one audited webhook request.
type Delivery struct {
	ID             uuid.UUID
	Receiver       string
	TransmissionID string
	EventID        string
	EventType      string
	Verdict        string
	Error          string
	ReceivedAt     time.Time
}

type DeliveryStore struct {
	exec Executor
	now  func() time.Time
}

func NewDeliveryStore(exec Executor) *DeliveryStore {
	return &DeliveryStore{exec: exec, now: time.Now}
}

// Record inserts a delivery, filling in ID and ReceivedAt when unset.
func (s *DeliveryStore) Record(ctx context.Context, delivery *Delivery) error {
	if delivery == nil {
		return fmt.Errorf("delivery is required")
	}
	if delivery.Receiver == "" || delivery.Verdict == "" {
		return fmt.Errorf("delivery receiver and verdict are required")
	}
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = s.now().UTC()
	}

	_, err := s.exec.Exec(ctx, `
		INSERT INTO paypal_webhook_deliveries
			(id, receiver, transmission_id, event_id, event_type, verdict, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		delivery.ID,
		delivery.Receiver,
		delivery.TransmissionID,
		optionalText(delivery.EventID),
		optionalText(delivery.EventType),
		delivery.Verdict,
		optionalText(delivery.Error),
		delivery.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// Latest returns the most recent delivery of a transmission to a receiver.
func (s *DeliveryStore) Latest(ctx context.Context, receiver, transmissionID string) (*Delivery, error) {
	var (
		delivery  Delivery
		eventID   pgtype.Text
		eventType pgtype.Text
		errText   pgtype.Text
	)
	err := s.exec.QueryRow(ctx, `
		SELECT id, receiver, transmission_id, event_id, event_type, verdict, error, received_at
		FROM paypal_webhook_deliveries
		WHERE receiver = $1 AND transmission_id = $2
		ORDER BY received_at DESC
		LIMIT 1`,
		receiver, transmissionID,
	).Scan(
		&delivery.ID,
		&delivery.Receiver,
		&delivery.TransmissionID,
		&eventID,
		&eventType,
		&delivery.Verdict,
		&errText,
		&delivery.ReceivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery: %w", err)
	}

	delivery.EventID = eventID.String
	delivery.EventType = eventType.String
	delivery.Error = errText.String
	return &delivery, nil
}

func optionalText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
