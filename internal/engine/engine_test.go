package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableyield/loopscout/internal/types"
)

func fixedStrategy(category string, chains []string, opportunities []types.YieldOpportunity, err error) Strategy {
	return Strategy{
		Category: category,
		Chains:   chains,
		Fetch: func(ctx context.Context, chain string) ([]types.YieldOpportunity, error) {
			if err != nil {
				return nil, err
			}
			var out []types.YieldOpportunity
			for _, o := range opportunities {
				o.Chain = chain
				out = append(out, o)
			}
			return out, nil
		},
	}
}

func TestNewEngine_RequiresStrategies(t *testing.T) {
	_, err := NewEngine(nil, nil)
	assert.ErrorIs(t, err, ErrNoStrategies)
}

func TestRun_CollectsAcrossStrategiesAndChains(t *testing.T) {
	lend := []types.YieldOpportunity{{Category: "Lend", Protocol: "Morpho", DisplayAsset: "USDC", APY: 4}}
	loops := []types.YieldOpportunity{{Category: "Loop", Protocol: "Morpho", DisplayAsset: "sUSDe", APY: 16, Leverage: 3}}

	e, err := NewEngine([]Strategy{
		fixedStrategy("Lend", []string{"Ethereum", "Base"}, lend, nil),
		fixedStrategy("Loop", []string{"Ethereum"}, loops, nil),
	}, nil)
	require.NoError(t, err)

	snapshot := e.Run(context.Background())

	assert.NotEmpty(t, snapshot.RunID)
	assert.False(t, snapshot.GeneratedAt.IsZero())
	require.Len(t, snapshot.Opportunities, 3)

	// Snapshots come back APY-descending.
	assert.InDelta(t, 16.0, snapshot.Opportunities[0].APY, 1e-9)
}

func TestRun_FailingStrategySkippedNotFatal(t *testing.T) {
	ok := []types.YieldOpportunity{{Category: "Lend", Protocol: "Morpho", DisplayAsset: "USDC", APY: 4}}

	e, err := NewEngine([]Strategy{
		fixedStrategy("Lend", []string{"Ethereum"}, ok, nil),
		fixedStrategy("Broken", []string{"Ethereum", "Base"}, nil, errors.New("upstream down")),
	}, nil)
	require.NoError(t, err)

	snapshot := e.Run(context.Background())
	require.Len(t, snapshot.Opportunities, 1)
	assert.Equal(t, "Lend", snapshot.Opportunities[0].Category)
}

func TestLatest_ReflectsMostRecentRun(t *testing.T) {
	e, err := NewEngine([]Strategy{
		fixedStrategy("Lend", []string{"Ethereum"},
			[]types.YieldOpportunity{{Category: "Lend", APY: 4}}, nil),
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, e.Latest().RunID)

	first := e.Run(context.Background())
	assert.Equal(t, first.RunID, e.Latest().RunID)

	second := e.Run(context.Background())
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, second.RunID, e.Latest().RunID)
}

func TestCategoriesAndChains_DistinctSorted(t *testing.T) {
	e, err := NewEngine([]Strategy{
		fixedStrategy("Loop", []string{"Ethereum", "Base"},
			[]types.YieldOpportunity{{Category: "Loop", APY: 10}}, nil),
		fixedStrategy("Lend", []string{"Base"},
			[]types.YieldOpportunity{{Category: "Lend", APY: 4}}, nil),
	}, nil)
	require.NoError(t, err)

	e.Run(context.Background())

	assert.Equal(t, []string{"Lend", "Loop"}, e.Categories())
	assert.Equal(t, []string{"Base", "Ethereum"}, e.Chains())
}

type recordingStore struct {
	snapshots []Snapshot
	err       error
}

func (r *recordingStore) SaveSynthesisRun(snapshot Snapshot) error {
	r.snapshots = append(r.snapshots, snapshot)
	return r.err
}

func TestRun_PersistsToStore(t *testing.T) {
	store := &recordingStore{}
	e, err := NewEngine([]Strategy{
		fixedStrategy("Lend", []string{"Ethereum"},
			[]types.YieldOpportunity{{Category: "Lend", APY: 4}}, nil),
	}, store)
	require.NoError(t, err)

	snapshot := e.Run(context.Background())
	require.Len(t, store.snapshots, 1)
	assert.Equal(t, snapshot.RunID, store.snapshots[0].RunID)
}

func TestRun_StoreFailureDoesNotAbortRun(t *testing.T) {
	store := &recordingStore{err: errors.New("db gone")}
	e, err := NewEngine([]Strategy{
		fixedStrategy("Lend", []string{"Ethereum"},
			[]types.YieldOpportunity{{Category: "Lend", APY: 4}}, nil),
	}, store)
	require.NoError(t, err)

	snapshot := e.Run(context.Background())
	assert.NotEmpty(t, snapshot.RunID)
	assert.Equal(t, snapshot.RunID, e.Latest().RunID)
}

func TestRunLoop_StopsOnContextCancel(t *testing.T) {
	e, err := NewEngine([]Strategy{
		fixedStrategy("Lend", []string{"Ethereum"},
			[]types.YieldOpportunity{{Category: "Lend", APY: 4}}, nil),
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.RunLoop(ctx, time.Hour)
		close(done)
	}()

	// The immediate run must complete before cancellation lands.
	assert.Eventually(t, func() bool { return e.Latest().RunID != "" }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop did not stop after context cancellation")
	}
}
