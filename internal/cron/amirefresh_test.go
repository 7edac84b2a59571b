package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeQuerier struct {
	rows []fakeRow
	call int
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	row := q.rows[q.call]
	q.call++
	return row
}

func TestCurrentHouseholdSumsFinalizedIncome(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{
		{scan: func(dest ...any) error {
			*dest[0].(*string) = "lease-1"
			return nil
		}},
		{scan: func(dest ...any) error {
			*dest[0].(*float64) = 42500
			*dest[1].(*int) = 2
			return nil
		}},
	}}

	total, count, err := currentHousehold(context.Background(), q, "unit-1")
	require.NoError(t, err)
	assert.Equal(t, 42500.0, total)
	assert.Equal(t, 2, count)
}

func TestCurrentHouseholdVacantOnNoRows(t *testing.T) {
	q := &fakeQuerier{rows: []fakeRow{
		{scan: func(dest ...any) error { return pgx.ErrNoRows }},
	}}

	total, count, err := currentHousehold(context.Background(), q, "unit-1")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, count)
}

// A transient query failure must not read as a vacant unit — that would
// cache a wrong bucket until the next refresh.
func TestCurrentHouseholdPropagatesQueryErrors(t *testing.T) {
	boom := errors.New("connection reset")
	q := &fakeQuerier{rows: []fakeRow{
		{scan: func(dest ...any) error { return boom }},
	}}

	_, _, err := currentHousehold(context.Background(), q, "unit-1")
	assert.ErrorIs(t, err, boom)
}
