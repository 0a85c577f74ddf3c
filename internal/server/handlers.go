package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/gridbase/gridbase/internal/formula"
	"github.com/gridbase/gridbase/internal/store"
)

// evalRequest is the shared evaluate/validate/live request body.
type evalRequest struct {
	Formula     string                              `json:"formula"`
	Context     map[string]interface{}              `json:"context"`
	Collections map[string][]map[string]interface{} `json:"collections"`
	Variables   map[string]interface{}              `json:"variables"`
}

// batchRequest carries id-tagged formulas sharing one context.
type batchRequest struct {
	Formulas []struct {
		ID      string `json:"id"`
		Formula string `json:"formula"`
	} `json:"formulas"`
	Context     map[string]interface{}              `json:"context"`
	Collections map[string][]map[string]interface{} `json:"collections"`
	Variables   map[string]interface{}              `json:"variables"`
}

// evaluateFormula evaluates one formula against the request context
func (s *Server) evaluateFormula(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	payload, ferr := s.evaluateOne(&req)
	s.metrics.Observe("formula", start, errOrNil(ferr))
	if ferr != nil {
		writeEngineError(w, ferr)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// evaluateBatch evaluates every formula independently on a bounded
// worker pool. Results and errors come back keyed by formula id; one
// failed formula never fails the batch.
func (s *Server) evaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	for _, f := range req.Formulas {
		if f.ID == "" {
			http.Error(w, "every batch formula needs an id", http.StatusBadRequest)
			return
		}
	}

	start := time.Now()
	values := make([]interface{}, len(req.Formulas))
	failures := make([]*formula.Error, len(req.Formulas))

	sem := make(chan struct{}, s.config.Concurrency)
	var wg sync.WaitGroup
	for i := range req.Formulas {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Each formula gets its own Context built from the shared
			// request maps; Contexts are never shared across goroutines.
			item := evalRequest{
				Formula:     req.Formulas[i].Formula,
				Context:     req.Context,
				Collections: req.Collections,
				Variables:   req.Variables,
			}
			val, ferr := s.evaluateValue(&item)
			if ferr != nil {
				failures[i] = ferr
				return
			}
			values[i] = val
		}(i)
	}
	wg.Wait()
	s.metrics.Observe("batch", start, nil)

	results := make(map[string]interface{}, len(req.Formulas))
	errs := make(map[string]string)
	for i, f := range req.Formulas {
		if failures[i] != nil {
			errs[f.ID] = failures[i].Message
			continue
		}
		results[f.ID] = values[i]
	}
	data := map[string]interface{}{"results": results}
	if len(errs) > 0 {
		data["errors"] = errs
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// evaluateValue runs a single evaluation and returns the raw result.
func (s *Server) evaluateValue(req *evalRequest) (interface{}, *formula.Error) {
	ctx := formula.NewContext(req.Context, req.Collections, req.Variables)
	val, err := s.engine.Evaluate(req.Formula, ctx)
	if err != nil {
		return nil, asEngineError(err)
	}
	return val.GoValue(), nil
}

// evaluateOne runs a single evaluation and builds the enveloped
// success payload.
func (s *Server) evaluateOne(req *evalRequest) (map[string]interface{}, *formula.Error) {
	start := time.Now()
	ctx := formula.NewContext(req.Context, req.Collections, req.Variables)
	val, err := s.engine.Evaluate(req.Formula, ctx)
	if err != nil {
		return nil, asEngineError(err)
	}
	return map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"formula":     req.Formula,
			"result":      val.GoValue(),
			"type":        string(val.Kind()),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
		},
	}, nil
}

// validateFormula parses a formula without evaluating it
func (s *Server) validateFormula(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if ferr := s.engine.Validate(req.Formula); ferr != nil {
		payload := errorPayload(ferr)
		payload["valid"] = false
		writeJSON(w, http.StatusOK, payload)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// listFunctions returns the live function catalog
func (s *Server) listFunctions(w http.ResponseWriter, r *http.Request) {
	infos := s.engine.Functions()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(infos),
		"functions": infos,
	})
}

// listRules returns all loaded business rules
func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	list := s.rules.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(list),
		"rules": list,
	})
}

// executeRule runs one business rule against the request input
func (s *Server) executeRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ruleID := vars["id"]

	rule, exists := s.rules.Get(ruleID)
	if !exists {
		http.Error(w, fmt.Sprintf("Rule '%s' not found", ruleID), http.StatusNotFound)
		return
	}

	var req struct {
		Input map[string]interface{} `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := s.ruleExec.Execute(rule, req.Input)
	s.metrics.Observe("rule", start, errOrNil(result.Error))

	if result.Error != nil {
		writeEngineError(w, result.Error)
		return
	}

	payload := map[string]interface{}{
		"success":       true,
		"rule_id":       result.RuleID,
		"condition_met": result.ConditionMet,
	}
	if result.Action != nil {
		payload["action"] = result.Action.GoValue()
	}
	writeJSON(w, http.StatusOK, payload)
}

// listTables returns all loaded decision tables
func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	list := s.tables.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(list),
		"tables": list,
	})
}

// executeTable runs one decision table against the request input
func (s *Server) executeTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tableID := vars["id"]

	table, exists := s.tables.Get(tableID)
	if !exists {
		http.Error(w, fmt.Sprintf("Table '%s' not found", tableID), http.StatusNotFound)
		return
	}

	var req struct {
		Input map[string]interface{} `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.tableExec.Execute(table, req.Input)
	s.metrics.Observe("table", start, err)
	if err != nil {
		writeEngineError(w, asEngineError(err))
		return
	}

	payload := map[string]interface{}{
		"success":       true,
		"matched_rules": result.MatchedRules,
		"outputs":       result.Outputs,
	}
	if len(result.Diagnostics) > 0 {
		payload["diagnostics"] = result.Diagnostics
	}
	writeJSON(w, http.StatusOK, payload)
}

// createQuery validates and persists a saved query
func (s *Server) createQuery(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Saved queries require a database; start with --db", http.StatusNotImplemented)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Formula     string `json:"formula"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if ferr := s.engine.Validate(req.Formula); ferr != nil {
		writeEngineError(w, ferr)
		return
	}

	q := &store.SavedQuery{Name: req.Name, Formula: req.Formula, Description: req.Description}
	if err := s.store.SaveQuery(q); err != nil {
		log.Error().Err(err).Msg("Failed to save query")
		http.Error(w, "Failed to save query", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// listQueries returns all saved queries
func (s *Server) listQueries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Saved queries require a database; start with --db", http.StatusNotImplemented)
		return
	}

	queries, err := s.store.ListQueries()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list queries")
		http.Error(w, "Failed to list queries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(queries),
		"queries": queries,
	})
}

// executeQuery runs a saved query and records an audit row
func (s *Server) executeQuery(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Saved queries require a database; start with --db", http.StatusNotImplemented)
		return
	}

	vars := mux.Vars(r)
	q, err := s.store.GetQuery(vars["id"])
	if err != nil {
		log.Error().Err(err).Msg("Failed to load query")
		http.Error(w, "Failed to load query", http.StatusInternalServerError)
		return
	}
	if q == nil {
		http.Error(w, fmt.Sprintf("Query '%s' not found", vars["id"]), http.StatusNotFound)
		return
	}

	var req evalRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
	}
	req.Formula = q.Formula

	start := time.Now()
	payload, ferr := s.evaluateOne(&req)
	s.metrics.Observe("formula", start, errOrNil(ferr))

	exec := &store.QueryExecution{
		QueryID:         q.ID,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	if ferr != nil {
		exec.Status = "error"
		exec.ErrorMessage = ferr.Error()
	} else {
		exec.Status = "success"
		if data, ok := payload["data"].(map[string]interface{}); ok {
			if raw, err := json.Marshal(data["result"]); err == nil {
				exec.Result = string(raw)
			}
		}
	}
	if err := s.store.RecordExecution(exec); err != nil {
		log.Error().Err(err).Str("query_id", q.ID).Msg("Failed to record execution")
	}

	if ferr != nil {
		writeEngineError(w, ferr)
		return
	}
	payload["query_id"] = q.ID
	payload["execution_id"] = exec.ID
	writeJSON(w, http.StatusOK, payload)
}

// healthCheck returns server health status
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"functions": s.engine.Registry().Len(),
		"rules":     s.rules.Count(),
		"tables":    s.tables.Count(),
		"timestamp": time.Now(),
	})
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// errorPayload builds the shared error body for an engine error.
func errorPayload(ferr *formula.Error) map[string]interface{} {
	payload := map[string]interface{}{
		"success": false,
		"error":   string(ferr.Code),
		"message": ferr.Message,
	}
	if ferr.Span.Start > 0 || ferr.Span.End > 0 {
		payload["position"] = ferr.Position()
		payload["span"] = ferr.Span
	}
	return payload
}

// writeEngineError maps an engine error to an HTTP status and writes
// the error payload.
func writeEngineError(w http.ResponseWriter, ferr *formula.Error) {
	status := http.StatusInternalServerError
	switch ferr.Code {
	case formula.CodeParse, formula.CodeValidation:
		status = http.StatusBadRequest
	case formula.CodeUnknownFunc, formula.CodeArity, formula.CodeType,
		formula.CodeUndefined, formula.CodeArithmetic:
		status = http.StatusUnprocessableEntity
	case formula.CodeTimeout:
		status = http.StatusRequestTimeout
	case formula.CodeHitPolicy:
		status = http.StatusConflict
	}
	writeJSON(w, status, errorPayload(ferr))
}

// asEngineError coerces any error into a structured engine error.
func asEngineError(err error) *formula.Error {
	var ferr *formula.Error
	if errors.As(err, &ferr) {
		return ferr
	}
	return &formula.Error{Code: formula.CodeInternal, Message: err.Error()}
}

// errOrNil lifts a typed nil check for metrics observation.
func errOrNil(ferr *formula.Error) error {
	if ferr == nil {
		return nil
	}
	return ferr
}
