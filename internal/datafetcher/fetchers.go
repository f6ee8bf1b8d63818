/*
This file contains the top-level constructor wiring one shared HTTP client
and one shared response cache into every protocol fetcher.
*/

package datafetcher

import (
	"fmt"
	"time"
)

// Fetchers bundles the protocol fetchers behind a single constructor so
// callers do not manage the shared client and cache themselves.
type Fetchers struct {
	Morpho *MorphoFetcher
	Pendle *PendleFetcher
}

// NewFetchers builds the fetcher set with a shared client and cache.
func NewFetchers(timeout time.Duration, morphoURL, pendleURL string) (*Fetchers, error) {
	cache, err := newResponseCache()
	if err != nil {
		return nil, fmt.Errorf("failed to build response cache: %w", err)
	}
	client := NewClient(timeout)
	return &Fetchers{
		Morpho: NewMorphoFetcher(client, cache, morphoURL),
		Pendle: NewPendleFetcher(client, cache, pendleURL),
	}, nil
}
