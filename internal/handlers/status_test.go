package handlers

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
	row fakeRow
}

func (q fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return q.row
}

func TestCurrentLeaseIDResolves(t *testing.T) {
	q := fakeQuerier{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "lease-1"
		return nil
	}}}

	leaseID, err := currentLeaseID(context.Background(), q, "unit-1")
	require.NoError(t, err)
	require.NotNil(t, leaseID)
	assert.Equal(t, "lease-1", *leaseID)
}

func TestCurrentLeaseIDVacantOnNoRows(t *testing.T) {
	q := fakeQuerier{row: fakeRow{scan: func(dest ...any) error {
		return pgx.ErrNoRows
	}}}

	leaseID, err := currentLeaseID(context.Background(), q, "unit-1")
	require.NoError(t, err)
	assert.Nil(t, leaseID)
}

// A query failure must surface as an error, not masquerade as a vacant
// unit.
func TestCurrentLeaseIDPropagatesQueryErrors(t *testing.T) {
	boom := errors.New("connection reset")
	q := fakeQuerier{row: fakeRow{scan: func(dest ...any) error {
		return boom
	}}}

	leaseID, err := currentLeaseID(context.Background(), q, "unit-1")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, leaseID)
}
