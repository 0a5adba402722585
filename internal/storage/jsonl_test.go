package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collateralScope/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	s := NewJsonlStorage(path)

	change := model.StatusChange{
		ID:          "6f1c1f4e-1d7e-4b61-9d55-0a9a3c3f2a10",
		Collateral:  "3pool",
		Old:         model.StatusSound,
		New:         model.StatusIffy,
		WhenDefault: 1_700_086_400,
		ObservedAt:  1_700_000_000,
	}
	lp := "1.02"
	snapshot := model.PriceSnapshot{
		Collateral:    "3pool",
		ObservedAt:    time.Unix(1_700_000_000, 0).UTC(),
		Status:        model.StatusIffy,
		ReferenceRate: "1.01",
		LPTokenPrice:  &lp,
		TokenPrices:   []string{"1", "0.97", "1"},
		Price:         lp,
	}

	require.NoError(t, s.PutStatusChange(ctx, change))
	require.NoError(t, s.PutSnapshot(ctx, snapshot))

	records, err := ReadJsonl(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, KindStatusChange, records[0].Kind)
	assert.Equal(t, change, *records[0].StatusChange)
	assert.Nil(t, records[0].Snapshot)

	assert.Equal(t, KindSnapshot, records[1].Kind)
	assert.Equal(t, snapshot, *records[1].Snapshot)
}

type failingSink struct{ err error }

func (f failingSink) PutStatusChange(context.Context, model.StatusChange) error { return f.err }
func (f failingSink) PutSnapshot(context.Context, model.PriceSnapshot) error    { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	boom := errors.New("boom")
	m := Multi{failingSink{err: boom}, NewJsonlStorage(path)}

	err := m.PutSnapshot(ctx, model.PriceSnapshot{Collateral: "3pool", Price: "1"})
	require.ErrorIs(t, err, boom)

	records, err := ReadJsonl(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
