package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/internal/dtable"
	"github.com/gridbase/gridbase/internal/rules"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	config := DefaultConfig()
	config.EnableMetrics = false
	s, err := New(config)
	require.NoError(t, err)
	s.metrics = NewEvalMetricsWithRegistry(prometheus.NewRegistry())

	require.NoError(t, s.rules.Register(&rules.Rule{
		ID:        "discount",
		Type:      rules.TypeCalculation,
		Condition: "total > 100",
		Action:    "total * 0.9",
		Enabled:   true,
	}, s.engine))

	require.NoError(t, s.tables.Register(&dtable.Table{
		ID:        "shipping",
		Inputs:    []string{"weight"},
		Outputs:   []string{"cost"},
		HitPolicy: dtable.PolicyFirst,
		DefaultOutput: map[string]interface{}{
			"cost": 0.0,
		},
		Rules: []*dtable.Rule{
			{ID: "heavy", Conditions: map[string]string{"weight": "weight > 20"}, Outputs: map[string]string{"cost": "25"}},
		},
	}, s.engine))

	return s
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestEvaluateFormula(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/formulas/evaluate", map[string]interface{}{
		"formula": "price * quantity",
		"context": map[string]interface{}{"price": 9.99, "quantity": 3},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	data := payload["data"].(map[string]interface{})
	assert.Equal(t, "price * quantity", data["formula"])
	assert.InDelta(t, 29.97, data["result"].(float64), 0.0001)
	assert.Equal(t, "number", data["type"])
	assert.Contains(t, data, "duration_ms")
}

func TestEvaluateFormula_Variables(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	// Values shadow variables of the same name.
	rec := doJSON(t, router, "POST", "/api/v1/formulas/evaluate", map[string]interface{}{
		"formula":   "x + y",
		"context":   map[string]interface{}{"x": 10},
		"variables": map[string]interface{}{"x": 99, "y": 5},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, 15.0, data["result"])
}

func TestEvaluateFormula_ErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	testCases := []struct {
		name    string
		formula string
		status  int
		code    string
	}{
		{"Parse error", "1 + ", http.StatusBadRequest, "PARSE_ERROR"},
		{"Unknown function", "Frobnicate(1)", http.StatusUnprocessableEntity, "UNKNOWN_FUNCTION"},
		{"Undefined name", "missing + 1", http.StatusUnprocessableEntity, "UNDEFINED_NAME"},
		{"Type mismatch", `"a" + 1`, http.StatusUnprocessableEntity, "TYPE_MISMATCH"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, "POST", "/api/v1/formulas/evaluate", map[string]interface{}{
				"formula": tc.formula,
			})
			assert.Equal(t, tc.status, rec.Code)

			payload := decodeBody(t, rec)
			assert.Equal(t, false, payload["success"])
			assert.Equal(t, tc.code, payload["error"])
			assert.NotEmpty(t, payload["message"])
		})
	}
}

func TestEvaluateBatch(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/formulas/evaluate-batch", map[string]interface{}{
		"formulas": []map[string]interface{}{
			{"id": "sum", "formula": "1 + 1"},
			{"id": "broken", "formula": "1 + "},
			{"id": "shout", "formula": `Upper(word)`},
		},
		"context": map[string]interface{}{"word": "go"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	data := payload["data"].(map[string]interface{})

	results := data["results"].(map[string]interface{})
	assert.Equal(t, 2.0, results["sum"])
	assert.Equal(t, "GO", results["shout"])
	assert.NotContains(t, results, "broken")

	// A failed formula lands in errors and never fails the batch.
	errs := data["errors"].(map[string]interface{})
	assert.Equal(t, "unexpected end of expression", errs["broken"])
}

func TestEvaluateBatch_RequiresIDs(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/formulas/evaluate-batch", map[string]interface{}{
		"formulas": []map[string]interface{}{
			{"formula": "1 + 1"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateFormula(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/formulas/validate", map[string]interface{}{
		"formula": "1 + 2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["valid"])

	rec = doJSON(t, router, "POST", "/api/v1/formulas/validate", map[string]interface{}{
		"formula": "1 + ",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["valid"])
	assert.Equal(t, "PARSE_ERROR", payload["error"])
	assert.Contains(t, payload, "position")
}

func TestListFunctions(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "GET", "/api/v1/formulas/functions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	count := payload["count"].(float64)
	assert.Greater(t, count, 40.0)
	functions := payload["functions"].([]interface{})
	assert.Len(t, functions, int(count))
}

func TestExecuteRule(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/rules/discount/execute", map[string]interface{}{
		"input": map[string]interface{}{"total": 200},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, true, payload["condition_met"])
	assert.Equal(t, 180.0, payload["action"])

	rec = doJSON(t, router, "POST", "/api/v1/rules/missing/execute", map[string]interface{}{
		"input": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteTable(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/tables/shipping/execute", map[string]interface{}{
		"input": map[string]interface{}{"weight": 30},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, []interface{}{"heavy"}, payload["matched_rules"])
	assert.Equal(t, map[string]interface{}{"cost": 25.0}, payload["outputs"])

	// No match falls back to the default output.
	rec = doJSON(t, router, "POST", "/api/v1/tables/shipping/execute", map[string]interface{}{
		"input": map[string]interface{}{"weight": 1},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	assert.Equal(t, map[string]interface{}{"cost": 0.0}, payload["outputs"])

	rec = doJSON(t, router, "POST", "/api/v1/tables/missing/execute", map[string]interface{}{
		"input": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRulesAndTables(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "GET", "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["count"])

	rec = doJSON(t, router, "GET", "/api/v1/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decodeBody(t, rec)["count"])
}

func TestSavedQueriesWithoutStore(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "POST", "/api/v1/queries", map[string]interface{}{
		"name":    "q",
		"formula": "1 + 1",
	})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/queries", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, "healthy", payload["status"])
	assert.Greater(t, payload["functions"].(float64), 0.0)
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest("OPTIONS", "/api/v1/formulas/evaluate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
