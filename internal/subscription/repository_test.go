package subscription

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupRepoMock(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

func TestGetActiveForPlan_Found(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscriptions WHERE user_id = $1 AND plan = $2 AND status = 'active'`)).
		WithArgs(4, PlanStarter).
		WillReturnRows(subRows(1, 4, "starter", "active", now.Add(-time.Hour), now.Add(29*24*time.Hour)))

	sub, err := repo.GetActiveForPlan(context.Background(), 4, PlanStarter)
	require.NoError(t, err)
	require.Equal(t, PlanStarter, sub.Plan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveForPlan_NotFound(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscriptions`)).
		WithArgs(4, PlanEnterprise).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetActiveForPlan(context.Background(), 4, PlanEnterprise)
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestCancel_NotFound(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subscriptions SET status = 'cancelled'`)).
		WithArgs(9, 4).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel(context.Background(), 4, 9)
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestCancel_Success(t *testing.T) {
	repo, mock, close := setupRepoMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subscriptions SET status = 'cancelled'`)).
		WithArgs(9, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Cancel(context.Background(), 4, 9)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
