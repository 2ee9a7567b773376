package subscription

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetActiveForPlan(ctx context.Context, userID int, plan Plan) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.GetContext(ctx, sub,
		`SELECT `+subColumns+`
		 FROM subscriptions
		 WHERE user_id = $1
		   AND plan = $2
		   AND status = 'active'
		   AND current_period_end >= NOW()
		 ORDER BY current_period_end DESC
		 LIMIT 1`,
		userID, plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *Repository) ListActiveByUser(ctx context.Context, userID int) ([]*Subscription, error) {
	subs := []*Subscription{}
	err := r.db.SelectContext(ctx, &subs,
		`SELECT `+subColumns+`
		 FROM subscriptions
		 WHERE user_id = $1
		   AND status = 'active'
		   AND current_period_end >= NOW()
		 ORDER BY created_at DESC`,
		userID)
	return subs, err
}

func (r *Repository) Cancel(ctx context.Context, userID, subID int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = 'cancelled', updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND status = 'active'`,
		subID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
