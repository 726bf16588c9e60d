package updates

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/mbd888/starledger/internal/dialog"
	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/revenue"
)

// Journal keeps the revenue status history of each dialog. Events of other
// kinds are ignored.
type Journal interface {
	Sink
	Recent(ctx context.Context, d dialog.ID, limit int) ([]Event, error)
}

// MemoryJournal is an in-memory journal for development and tests.
type MemoryJournal struct {
	events map[dialog.ID][]Event
	mu     sync.RWMutex
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{events: make(map[dialog.ID][]Event)}
}

func (m *MemoryJournal) Publish(ctx context.Context, e Event) {
	if e.Kind != KindRevenueStatus || e.Status == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[e.Dialog] = append(m.events[e.Dialog], e)
}

// Recent returns up to limit events of d, newest first.
func (m *MemoryJournal) Recent(ctx context.Context, d dialog.ID, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.events[d]
	out := make([]Event, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PostgresJournal stores revenue status events in PostgreSQL.
type PostgresJournal struct {
	db *sql.DB
}

var _ Journal = (*PostgresJournal)(nil)

// NewPostgresJournal creates a new PostgreSQL-backed journal.
func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

func (p *PostgresJournal) Publish(ctx context.Context, e Event) {
	if e.Kind != KindRevenueStatus || e.Status == nil {
		return
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO revenue_status_events (
			dialog_kind, dialog_id, overall_count, current_count, available_count,
			withdrawal_enabled, next_withdrawal_in, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.Dialog.Type.String(), e.Dialog.ID,
		e.Status.OverallCount, e.Status.CurrentCount, e.Status.AvailableCount,
		e.Status.WithdrawalEnabled, e.Status.NextWithdrawalIn, e.ReceivedAt,
	)
	if err != nil {
		logging.L(ctx).Error("failed to journal revenue status", "dialog", e.Dialog.String(), "error", err)
	}
}

func (p *PostgresJournal) Recent(ctx context.Context, d dialog.ID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT overall_count, current_count, available_count, withdrawal_enabled, next_withdrawal_in, received_at
		FROM revenue_status_events
		WHERE dialog_kind = $1 AND dialog_id = $2
		ORDER BY received_at DESC, id DESC
		LIMIT $3`,
		d.Type.String(), d.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query revenue events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var s revenue.Status
		e := Event{Kind: KindRevenueStatus, Dialog: d}
		if err := rows.Scan(&s.OverallCount, &s.CurrentCount, &s.AvailableCount, &s.WithdrawalEnabled, &s.NextWithdrawalIn, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan revenue event: %w", err)
		}
		e.Status = &s
		out = append(out, e)
	}
	return out, rows.Err()
}
