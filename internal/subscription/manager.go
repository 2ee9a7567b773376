package subscription

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const subColumns = `id, user_id, plan, status, started_at, current_period_end, created_at, updated_at`

// Manager applies the extend-or-create rule when a subscription-purpose
// transaction completes. It has no entry point of its own; the reconciler
// invokes it inside the DB transaction that flips the pending transaction.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// ApplyTx extends the active subscription for (user, plan) by the cycle
// duration, or creates a new one ending now+duration. An active row whose
// period has already lapsed is marked expired and replaced.
func (m *Manager) ApplyTx(ctx context.Context, tx *sqlx.Tx, userID int, plan Plan, cycle Cycle, now time.Time) (*Subscription, bool, error) {
	dur, err := CycleDuration(cycle)
	if err != nil {
		return nil, false, err
	}

	existing := &Subscription{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+subColumns+`
		 FROM subscriptions
		 WHERE user_id = $1 AND plan = $2 AND status = 'active'
		 ORDER BY current_period_end DESC
		 LIMIT 1
		 FOR UPDATE`,
		userID, plan,
	).StructScan(existing)

	switch {
	case err == nil && existing.CurrentPeriodEnd.After(now):
		newEnd := existing.CurrentPeriodEnd.Add(dur)
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions
			 SET current_period_end = $1, updated_at = NOW()
			 WHERE id = $2`,
			newEnd, existing.ID); err != nil {
			return nil, false, err
		}
		existing.CurrentPeriodEnd = newEnd
		return existing, true, nil

	case err == nil:
		// active by status but the period has lapsed
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET status = 'expired', updated_at = NOW() WHERE id = $1`,
			existing.ID); err != nil {
			return nil, false, err
		}

	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, err
	}

	sub := &Subscription{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, started_at, current_period_end)
		 VALUES ($1, $2, 'active', $3, $4)
		 RETURNING `+subColumns,
		userID, plan, now, now.Add(dur),
	).StructScan(sub)
	if err != nil {
		return nil, false, err
	}
	return sub, false, nil
}
