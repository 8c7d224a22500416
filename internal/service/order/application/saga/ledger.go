package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ordersaga/internal/service/order/domain"
)

// StageRecord is the ledger row a stage opens on entry and closes on exit.
type StageRecord struct {
	row  domain.OrderEvent
	now  func() time.Time
	done bool
}

// openRecord writes a pending ledger row for orderID.
func openRecord(ctx context.Context, repo domain.EventRepository, now func() time.Time, orderID uint64, eventType string, payload any) (*StageRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger payload: %w", err)
	}
	rec := &StageRecord{
		row: domain.OrderEvent{
			OrderID:   orderID,
			EventType: eventType,
			Payload:   raw,
			Status:    domain.EventPending,
			CreatedAt: now(),
		},
		now: now,
	}
	if err := repo.Create(ctx, &rec.row); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete closes the row with status. It may be called again after a
// rolled-back transaction to overwrite an in-transaction close.
func (r *StageRecord) Complete(ctx context.Context, repo domain.EventRepository, status domain.EventStatus, message string) error {
	t := r.now()
	r.row.Status = status
	r.row.ErrorMessage = message
	r.row.IsProcessed = true
	r.row.ProcessedAt = &t
	if err := repo.Update(ctx, &r.row); err != nil {
		return err
	}
	r.done = true
	return nil
}

func (r *StageRecord) ID() uint64 { return r.row.ID }

func (r *StageRecord) Status() domain.EventStatus { return r.row.Status }
