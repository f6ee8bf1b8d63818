/*

This file contains the API handlers for the opportunity endpoints, including
the query-parameter grammar for filtering and sorting the latest snapshot.

*/

package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/stableyield/loopscout/internal/analyzer"
	"github.com/stableyield/loopscout/internal/engine"
	"github.com/stableyield/loopscout/internal/types"
)

// SnapshotProvider is the engine surface the web layer depends on.
type SnapshotProvider interface {
	Latest() engine.Snapshot
	Categories() []string
	Chains() []string
	Run(ctx context.Context) engine.Snapshot
}

// handleGetOpportunities returns the latest snapshot, narrowed and ordered by
// query parameters: min_apy, max_risk, chain, asset, protocol, max_leverage,
// min_tvl, sort, order, limit.
func (ws *WebServer) handleGetOpportunities(w http.ResponseWriter, r *http.Request) {
	snapshot := ws.provider.Latest()
	query := r.URL.Query()

	filter, err := filterFromQuery(query)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	opportunities := analyzer.FilterOpportunities(snapshot.Opportunities, filter)

	field := analyzer.ParseSortField(query.Get("sort"))
	ascending := query.Get("order") == "asc"
	opportunities = analyzer.SortOpportunities(opportunities, field, ascending)

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(opportunities) {
			opportunities = opportunities[:limit]
		}
	}

	response := map[string]interface{}{
		"run_id":        snapshot.RunID,
		"generated_at":  snapshot.GeneratedAt,
		"count":         len(opportunities),
		"opportunities": opportunities,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOpportunity returns a single opportunity by fingerprint.
func (ws *WebServer) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snapshot := ws.provider.Latest()
	for _, o := range snapshot.Opportunities {
		if o.UniqueID() == id {
			ws.writeJSONResponse(w, http.StatusOK, o)
			return
		}
	}

	ws.writeErrorResponse(w, http.StatusNotFound, "Opportunity not found")
}

// handleGetCategories returns the distinct categories in the latest snapshot.
func (ws *WebServer) handleGetCategories(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"categories": ws.provider.Categories(),
	})
}

// handleGetChains returns the distinct chains in the latest snapshot.
func (ws *WebServer) handleGetChains(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"chains": ws.provider.Chains(),
	})
}

// handleGetParameters returns the synthesis parameters in effect.
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": ws.parameters,
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleRefresh triggers a synthesis run synchronously and returns its
// summary. A full run hits the upstream APIs, so the handler is bounded by a
// generous timeout rather than the server write timeout alone.
func (ws *WebServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	snapshot := ws.provider.Run(ctx)

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"run_id":        snapshot.RunID,
		"generated_at":  snapshot.GeneratedAt,
		"opportunities": len(snapshot.Opportunities),
	})
}

func filterFromQuery(query map[string][]string) (analyzer.Filter, error) {
	get := func(key string) string {
		if v, ok := query[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var filter analyzer.Filter
	filter.Chain = get("chain")
	filter.Asset = get("asset")
	filter.Protocol = get("protocol")

	if raw := get("min_apy"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, &queryError{param: "min_apy", value: raw}
		}
		filter.MinAPY = &v
	}
	if raw := get("max_leverage"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, &queryError{param: "max_leverage", value: raw}
		}
		filter.MaxLeverage = &v
	}
	if raw := get("min_tvl"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, &queryError{param: "min_tvl", value: raw}
		}
		filter.MinTVL = &v
	}
	if raw := get("max_risk"); raw != "" {
		level, err := types.ParseRiskLevel(raw)
		if err != nil {
			return filter, &queryError{param: "max_risk", value: raw}
		}
		filter.MaxRisk = &level
	}

	return filter, nil
}

type queryError struct {
	param string
	value string
}

func (e *queryError) Error() string {
	return "invalid value for " + e.param + ": " + e.value
}
