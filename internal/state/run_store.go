// ./internal/state/run_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/stableyield/loopscout/internal/engine"
)

// RunStore persists synthesis runs and their opportunities to PostgreSQL.
// It satisfies engine.RunStore.
type RunStore struct{}

// NewRunStore returns a store backed by the global connection pool. InitDB
// must have succeeded first.
func NewRunStore() (*RunStore, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &RunStore{}, nil
}

// SaveSynthesisRun writes the run row and all of its opportunities in one
// transaction.
func (s *RunStore) SaveSynthesisRun(snapshot engine.Snapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	var topAPY *float64
	if len(snapshot.Opportunities) > 0 {
		topAPY = &snapshot.Opportunities[0].APY
	}

	seen := make(map[string]bool)
	var categories []string
	for _, o := range snapshot.Opportunities {
		if !seen[o.Category] {
			seen[o.Category] = true
			categories = append(categories, o.Category)
		}
	}

	runStmt := `
        INSERT INTO synthesis_runs (run_id, run_timestamp, opportunity_count, top_apy, categories)
        VALUES ($1, $2, $3, $4, $5);`
	_, err = tx.Exec(runStmt, snapshot.RunID, snapshot.GeneratedAt, len(snapshot.Opportunities), topAPY, pq.Array(categories))
	if err != nil {
		return fmt.Errorf("failed to insert synthesis run: %w", err)
	}

	oppStmt := `
        INSERT INTO opportunities (
            run_id, fingerprint, category, protocol, chain, display_asset,
            apy, tvl_usd, leverage, supply_apy, borrow_apy,
            risk_level, maturity_date, source_url, extra
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`

	for _, o := range snapshot.Opportunities {
		var extra []byte
		if len(o.Extra) > 0 {
			extra, err = json.Marshal(o.Extra)
			if err != nil {
				return fmt.Errorf("failed to marshal opportunity extra for %s: %w", o.UniqueID(), err)
			}
		}
		_, err = tx.Exec(oppStmt,
			snapshot.RunID, o.UniqueID(), o.Category, o.Protocol, o.Chain, o.DisplayAsset,
			o.APY, o.TVL, o.Leverage, o.SupplyAPY, o.BorrowAPY,
			o.RiskScore.String(), o.MaturityDate, o.SourceURL, extra,
		)
		if err != nil {
			return fmt.Errorf("failed to insert opportunity %s: %w", o.UniqueID(), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("run_id", snapshot.RunID).
		Int("opportunities", len(snapshot.Opportunities)).
		Msg("Persisted synthesis run")
	return nil
}
