/*

This file contains the synthesis engine: the orchestrator that fans every
registered strategy out across its chains, collects the surviving
opportunities into a snapshot, and keeps the latest snapshot available to
the web layer. A failing strategy/chain pair is logged and skipped; it never
poisons the run.

*/

package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stableyield/loopscout/internal/analyzer"
	"github.com/stableyield/loopscout/internal/logger"
	"github.com/stableyield/loopscout/internal/types"
)

var (
	ErrNoStrategies = errors.New("engine requires at least one strategy")
)

// Snapshot is the result of one full synthesis run.
type Snapshot struct {
	RunID         string                   `json:"run_id"`
	GeneratedAt   time.Time                `json:"generated_at"`
	Opportunities []types.YieldOpportunity `json:"opportunities"`
}

// RunStore persists completed snapshots. Optional; a nil store disables
// persistence.
type RunStore interface {
	SaveSynthesisRun(snapshot Snapshot) error
}

type Engine struct {
	logger     zerolog.Logger
	strategies []Strategy
	store      RunStore

	mu     sync.RWMutex
	latest Snapshot
}

func NewEngine(strategies []Strategy, store RunStore) (*Engine, error) {
	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	return &Engine{
		logger:     logger.GetForComponent("engine"),
		strategies: strategies,
		store:      store,
	}, nil
}

type fetchResult struct {
	category      string
	chain         string
	opportunities []types.YieldOpportunity
	err           error
}

// Run executes every strategy on every chain it covers, in parallel, and
// publishes the merged snapshot. The returned snapshot is also retrievable
// through Latest until the next run replaces it.
func (e *Engine) Run(ctx context.Context) Snapshot {
	started := time.Now().UTC()

	var jobs int
	for _, s := range e.strategies {
		jobs += len(s.Chains)
	}

	results := make(chan fetchResult, jobs)
	var wg sync.WaitGroup
	for _, strategy := range e.strategies {
		for _, chain := range strategy.Chains {
			wg.Add(1)
			go func(s Strategy, chain string) {
				defer wg.Done()
				opportunities, err := s.Fetch(ctx, chain)
				results <- fetchResult{
					category:      s.Category,
					chain:         chain,
					opportunities: opportunities,
					err:           err,
				}
			}(strategy, chain)
		}
	}
	wg.Wait()
	close(results)

	var all []types.YieldOpportunity
	for res := range results {
		if res.err != nil {
			e.logger.Warn().
				Err(res.err).
				Str("category", res.category).
				Str("chain", res.chain).
				Msg("Strategy fetch failed, skipping")
			continue
		}
		all = append(all, res.opportunities...)
	}

	snapshot := Snapshot{
		RunID:         uuid.NewString(),
		GeneratedAt:   started,
		Opportunities: analyzer.SortOpportunities(all, analyzer.SortAPY, false),
	}

	e.mu.Lock()
	e.latest = snapshot
	e.mu.Unlock()

	e.logger.Info().
		Str("run_id", snapshot.RunID).
		Int("opportunities", len(snapshot.Opportunities)).
		Dur("elapsed", time.Since(started)).
		Msg("Synthesis run complete")

	if e.store != nil {
		if err := e.store.SaveSynthesisRun(snapshot); err != nil {
			e.logger.Error().Err(err).Str("run_id", snapshot.RunID).Msg("Failed to persist synthesis run")
		}
	}

	return snapshot
}

// RunLoop runs immediately, then on every tick of interval, until the
// context is cancelled.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopping")
			return
		case <-ticker.C:
			e.Run(ctx)
		}
	}
}

// Latest returns the most recent snapshot. The zero Snapshot is returned
// before the first run completes.
func (e *Engine) Latest() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Categories returns the distinct categories present in the latest
// snapshot, sorted.
func (e *Engine) Categories() []string {
	return e.distinct(func(o types.YieldOpportunity) string { return o.Category })
}

// Chains returns the distinct chains present in the latest snapshot,
// sorted.
func (e *Engine) Chains() []string {
	return e.distinct(func(o types.YieldOpportunity) string { return o.Chain })
}

func (e *Engine) distinct(key func(types.YieldOpportunity) string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, o := range e.latest.Opportunities {
		k := key(o)
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
