package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arccs/internal/assessor"
	"arccs/internal/schema"
)

// stubAssessor returns a canned judgment for every regulation.
type stubAssessor struct {
	judgment schema.Judgment
	err      error
}

func (a *stubAssessor) Assess(ctx context.Context, reg schema.Regulation, document string) (schema.Judgment, error) {
	return a.judgment, a.err
}

func newTestServer(t *testing.T, stub *stubAssessor) *Server {
	t.Helper()
	dir := t.TempDir()
	srv := New(zap.NewNop(),
		filepath.Join(dir, "settings.json"),
		filepath.Join(dir, "history.json"))
	if stub != nil {
		srv.newAssessor = func(providerModel string, cfg assessor.ModelConfig) (assessor.Assessor, error) {
			return stub, nil
		}
	}
	return srv
}

const regulationSetJSON = `{"regulations": [
	{
		"regulation_id": "REG-001",
		"regulation_name": "Coastal Setback Requirement",
		"description": {
			"brief_summary": "Developments must keep a minimum setback from the coastline.",
			"detailed_explanation": "Any development within the coastal zone must maintain a setback of at least 100 metres from the high-water mark to protect dune systems."
		},
		"requirements": {"mandatory": ["Maintain 100m setback from high-water mark"]},
		"restrictions": {"prohibited_actions": ["Construction within the dune buffer"]},
		"domain": {"primary_domain": "environmental"},
		"keywords": ["coastal", "setback", "dunes"]
	}
]}`

const proposalText = `# Marina Expansion Proposal

The proposed marina maintains a 150 metre setback from the high-water
mark and avoids the dune buffer entirely.
`

func postJSON(t *testing.T, router http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	router := newTestServer(t, nil).Routes()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestWorkflowEndToEnd(t *testing.T) {
	stub := &stubAssessor{judgment: schema.Judgment{
		HasRelevantInformation: true,
		Evidence:               "150 metre setback stated",
		Explanation:            "The proposal exceeds the required setback.",
		ConfidenceScore:        0.94,
	}}
	router := newTestServer(t, stub).Routes()

	rec := postJSON(t, router, "/upload-regulations", regulationSetJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	sessionID := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, float64(1), body["count"])

	req := httptest.NewRequest(http.MethodPost, "/upload-proposal?session_id="+sessionID,
		bytes.NewBufferString(proposalText))
	req.Header.Set("Content-Type", "text/markdown")
	req.Header.Set("X-Filename", "proposal.md")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, "proposal.md", body["name"])
	assert.Equal(t, float64(1), body["sections"])

	rec = postJSON(t, router, "/run-compliance-check?session_id="+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	report := body["report"].(map[string]any)
	assert.True(t, strings.HasPrefix(report["overall_status"].(string), "COMPLIANT"),
		"overall_status = %v", report["overall_status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/export-report?session_id="+sessionID+"&format=md", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "compliance_report.md")
	assert.Contains(t, rec.Body.String(), "Coastal Setback Requirement")
}

func TestRunCheckWithoutUploads(t *testing.T) {
	router := newTestServer(t, &stubAssessor{}).Routes()

	rec := postJSON(t, router, "/run-compliance-check", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestRunCheckAssessorFailureStillSucceeds(t *testing.T) {
	stub := &stubAssessor{err: fmt.Errorf("provider unreachable")}
	router := newTestServer(t, stub).Routes()

	rec := postJSON(t, router, "/upload-regulations", regulationSetJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := decodeBody(t, rec)["session_id"].(string)

	docJSON, _ := json.Marshal(map[string]string{"text": proposalText})
	rec = postJSON(t, router, "/upload-proposal?session_id="+sessionID, string(docJSON))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/run-compliance-check?session_id="+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody(t, rec)["report"].(map[string]any)
	assert.True(t, strings.HasPrefix(report["overall_status"].(string), "REVIEW REQUIRED"),
		"overall_status = %v", report["overall_status"])

	results := report["detailed_results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "HUMAN_REQUIRED", results[0].(map[string]any)["compliance_status"])
}

func TestResetClearsSession(t *testing.T) {
	router := newTestServer(t, &stubAssessor{}).Routes()

	rec := postJSON(t, router, "/upload-regulations", regulationSetJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := decodeBody(t, rec)["session_id"].(string)

	rec = postJSON(t, router, "/reset?session_id="+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/run-compliance-check?session_id="+sessionID, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "no regulations")
}

func TestSettingsRoundTrip(t *testing.T) {
	router := newTestServer(t, nil).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "openai:gpt-4o", decodeBody(t, rec)["model"])

	rec = postJSON(t, router, "/api/settings", `{"model": "anthropic:claude-sonnet-4-0", "quality_threshold": 55}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	body := decodeBody(t, rec)
	assert.Equal(t, "anthropic:claude-sonnet-4-0", body["model"])
	assert.Equal(t, float64(55), body["quality_threshold"])
	// Untouched fields keep their defaults.
	assert.Equal(t, float64(4), body["concurrency"])
}

func TestSettingsRejectsOutOfRange(t *testing.T) {
	router := newTestServer(t, nil).Routes()

	rec := postJSON(t, router, "/api/settings", `{"confidence_threshold": 1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["message"], "confidence_threshold")
}

func TestCheckAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	router := newTestServer(t, nil).Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings/check-api-key", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "openai", body["provider"])
	assert.Equal(t, true, body["configured"])
}

func TestHistoryLifecycle(t *testing.T) {
	stub := &stubAssessor{judgment: schema.Judgment{
		HasRelevantInformation: true,
		Explanation:            "ok",
		ConfidenceScore:        0.9,
	}}
	router := newTestServer(t, stub).Routes()

	rec := postJSON(t, router, "/upload-regulations", regulationSetJSON)
	sessionID := decodeBody(t, rec)["session_id"].(string)
	docJSON, _ := json.Marshal(map[string]string{"text": proposalText})
	postJSON(t, router, "/upload-proposal?session_id="+sessionID, string(docJSON))
	rec = postJSON(t, router, "/run-compliance-check?session_id="+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0]["overall_status"].(string), "COMPLIANT"),
		"overall_status = %v", entries[0]["overall_status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/history/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
