package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/xp-ledger/internal/repository"
)

func TestBalancesRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := NewBalances(mock)
	ctx := context.Background()
	q := regexp.QuoteMeta(`SELECT amount FROM balances WHERE user_id = $1`)

	t.Run("existing row", func(t *testing.T) {
		mock.ExpectQuery(q).WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(120)))

		got, err := r.Get(ctx, "u1")
		assert.NoError(t, err)
		assert.Equal(t, int64(120), got)
	})

	t.Run("missing row reads as zero", func(t *testing.T) {
		mock.ExpectQuery(q).WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}))

		got, err := r.Get(ctx, "ghost")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalancesRepo_Credit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO balances .* ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs("u1", int64(30)).
		WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(130)))

	got, err := NewBalances(mock).Credit(context.Background(), "u1", 30)
	assert.NoError(t, err)
	assert.Equal(t, int64(130), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalancesRepo_Debit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := NewBalances(mock)
	ctx := context.Background()
	update := `UPDATE balances\s+SET amount = amount - \$2`

	t.Run("sufficient balance", func(t *testing.T) {
		mock.ExpectQuery(update).WithArgs("u1", int64(40)).
			WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(60)))

		got, err := r.Debit(ctx, "u1", 40)
		assert.NoError(t, err)
		assert.Equal(t, int64(60), got)
	})

	t.Run("insufficient balance leaves row untouched", func(t *testing.T) {
		mock.ExpectQuery(update).WithArgs("u1", int64(500)).
			WillReturnRows(pgxmock.NewRows([]string{"amount"}))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount FROM balances WHERE user_id = $1`)).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(60)))

		got, err := r.Debit(ctx, "u1", 500)
		assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
		assert.Equal(t, int64(60), got)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalancesRepo_DebitClamped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := NewBalances(mock)
	ctx := context.Background()
	lock := regexp.QuoteMeta(`SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE`)
	set := regexp.QuoteMeta(`UPDATE balances SET amount = $2, last_updated_at = now() WHERE user_id = $1`)

	t.Run("balance covers amount", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(100)))
		mock.ExpectExec(set).WithArgs("u1", int64(70)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		before, after, err := r.DebitClamped(ctx, "u1", 30)
		assert.NoError(t, err)
		assert.Equal(t, int64(100), before)
		assert.Equal(t, int64(70), after)
	})

	t.Run("clamps at zero", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(20)))
		mock.ExpectExec(set).WithArgs("u1", int64(0)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		before, after, err := r.DebitClamped(ctx, "u1", 50)
		assert.NoError(t, err)
		assert.Equal(t, int64(20), before)
		assert.Equal(t, int64(0), after)
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}))
		mock.ExpectCommit()

		before, after, err := r.DebitClamped(ctx, "ghost", 50)
		assert.NoError(t, err)
		assert.Zero(t, before)
		assert.Zero(t, after)
	})

	t.Run("update failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lock).WithArgs("u1").
			WillReturnRows(pgxmock.NewRows([]string{"amount"}).AddRow(int64(20)))
		mock.ExpectExec(set).WithArgs("u1", int64(0)).
			WillReturnError(errors.New("conn reset"))
		mock.ExpectRollback()

		_, _, err := r.DebitClamped(ctx, "u1", 50)
		assert.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
