package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formworks/pdf-form-filler/internal/config"
	"github.com/formworks/pdf-form-filler/internal/facts"
	"github.com/formworks/pdf-form-filler/internal/fetch"
	"github.com/formworks/pdf-form-filler/internal/jobs"
	"github.com/formworks/pdf-form-filler/internal/llm"
	"github.com/formworks/pdf-form-filler/internal/pdf"
	"github.com/formworks/pdf-form-filler/internal/storage"
)

type stubFetcher struct {
	data []byte
	err  error
}

func (f *stubFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, "application/pdf", nil
}

type stubDecider struct{}

func (stubDecider) DecideField(_ context.Context, field pdf.FormField, _, _ string) (*llm.FieldDecision, error) {
	return &llm.FieldDecision{FieldName: field.Name, Action: llm.ActionSkip, Reason: "stub"}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ServiceName = "pdf-form-filler"
	cfg.Version = "test"
	return cfg
}

func newTestServer(t *testing.T, fetcher fetch.Fetcher) (*Server, *storage.Memory, *storage.ManifestStore) {
	t.Helper()

	blobs := storage.NewMemory()
	manifests := storage.NewManifestStore(blobs, "manifest.json")
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	orch := jobs.NewOrchestrator(jobs.Deps{
		Blobs:         blobs,
		Manifests:     manifests,
		Fetcher:       fetcher,
		Aggregator:    facts.NewAggregator(blobs, 80, logger),
		Decider:       stubDecider{},
		Registry:      jobs.NewRegistry(),
		Logger:        logger,
		Concurrency:   2,
		MaxFormSize:   25 << 20,
		BucketBaseURL: "https://storage.example.com/bucket",
	})

	srv, err := NewServer(testConfig(), orch, logger)
	require.NoError(t, err)
	return srv, blobs, manifests
}

func seedUser(t *testing.T, blobs *storage.Memory, manifests *storage.ManifestStore, userID string) {
	t.Helper()
	ctx := context.Background()

	result := facts.ExtractionResult{
		DocumentDescription: "A payslip.",
		StructuredInformation: []facts.StructuredFact{
			{Name: "employer", Value: "Acme Corp"},
		},
	}
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	infoKey := userID + "/payslip.info.json"
	require.NoError(t, blobs.Put(ctx, infoKey, payload, "application/json"))

	manifest := storage.NewManifest(userID)
	manifest.Files = append(manifest.Files, storage.FileEntry{
		Slug: "payslip", FileName: "payslip.pdf", InfoKey: infoKey,
	})
	require.NoError(t, manifests.Save(ctx, userID, manifest))
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubFetcher{})
	handler := srv.httpHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "pdf-form-filler", health.Service)
}

func TestStartEndpointValidation(t *testing.T) {
	srv, blobs, manifests := newTestServer(t, &stubFetcher{})
	seedUser(t, blobs, manifests, "alice")
	handler := srv.httpHandler()

	t.Run("missing form URL", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/form-fill", startRequest{UserID: "alice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid form URL", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/form-fill", startRequest{UserID: "alice", FormURL: "ftp://example.com/f.pdf"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid JSON body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/form-fill", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no uploads", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/form-fill", startRequest{UserID: "bob", FormURL: "https://example.com/f.pdf"})
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	})
}

func TestStartAndPollJob(t *testing.T) {
	// The stub fetcher returns junk, so the job is accepted and then fails
	// during validation; the API contract is identical either way.
	srv, blobs, manifests := newTestServer(t, &stubFetcher{data: []byte("junk")})
	seedUser(t, blobs, manifests, "alice")
	handler := srv.httpHandler()

	rec := postJSON(t, handler, "/api/form-fill", startRequest{UserID: "alice", FormURL: "https://example.com/w-4.pdf"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var snap jobs.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.JobID)
	assert.Equal(t, "https-example-com-w-4-pdf", snap.FormSlug)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/form-fill/"+snap.JobID, nil)
		poll := httptest.NewRecorder()
		handler.ServeHTTP(poll, req)
		require.Equal(t, http.StatusOK, poll.Code)
		require.NoError(t, json.Unmarshal(poll.Body.Bytes(), &snap))
		return snap.Status == jobs.StatusError || snap.Status == jobs.StatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, jobs.StatusError, snap.Status)
	assert.Contains(t, snap.Message, "validating form")
}

func TestStatusEndpointUnknownJob(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubFetcher{})
	handler := srv.httpHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/form-fill/no-such-job", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "job not found")
}

func TestHandleFormFillStartTool(t *testing.T) {
	srv, blobs, manifests := newTestServer(t, &stubFetcher{err: errors.New("unreachable")})
	seedUser(t, blobs, manifests, "alice")

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"form_url": "https://example.com/w-4.pdf",
				"user_id":  "alice",
			},
		},
	}
	result, err := srv.handleFormFillStart(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)

	text := extractTextFromResult(result)
	assert.Contains(t, text, "Job ID:")
	assert.Contains(t, text, "Status: queued")
}

func TestHandleFormFillStartToolMissingURL(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubFetcher{})

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{},
		},
	}
	result, err := srv.handleFormFillStart(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestHandleFormFillStatusTool(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubFetcher{})

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"job_id": "missing",
			},
		},
	}
	result, err := srv.handleFormFillStatus(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), "job not found")
}

func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}
	return ""
}
