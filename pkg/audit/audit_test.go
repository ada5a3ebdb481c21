package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfgraph-io/tfgraph/pkg/engine/executor"
	"github.com/tfgraph-io/tfgraph/pkg/graph"
)

func TestReport_PostsRunSummary(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	summary := executor.NewRunSummary()
	summary.Record(&executor.NodeResult{Path: "/repo/a", Status: graph.StatusSucceeded})
	summary.Record(&executor.NodeResult{Path: "/repo/b", Status: graph.StatusFailed})
	summary.Record(&executor.NodeResult{Path: "/repo/c", Status: graph.StatusSkipped, SkipCause: "/repo/b"})

	NewClient(srv.URL).Report(context.Background(), "apply", summary)

	assert.Equal(t, summary.RunID, received.RunID)
	assert.NotEmpty(t, received.ID)
	assert.Equal(t, "apply", received.Operation)
	assert.Equal(t, []string{"/repo/a"}, received.Succeeded)
	assert.Equal(t, []string{"/repo/b"}, received.Failed)
	assert.Equal(t, []string{"/repo/c"}, received.NotApplied)
}

func TestReport_EndpointFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Must not panic or abort; failures are logged only.
	NewClient(srv.URL).Report(context.Background(), "plan", executor.NewRunSummary())
	NewClient("http://127.0.0.1:1/unreachable").Report(context.Background(), "plan", executor.NewRunSummary())
}
