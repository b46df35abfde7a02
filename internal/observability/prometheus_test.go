package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
)

func TestPrometheusHandler_ServesEngineMetrics(t *testing.T) {
	t.Parallel()

	handler, mp, err := observability.PrometheusHandler()
	require.NoError(t, err)

	mm, err := observability.NewMergeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	mm.RecordAlignment(context.Background(), "merge", observability.Alignment{Cells: 12, Unchanged: 3, Inserted: 1})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	body := rec.Body.String()
	assert.Contains(t, body, "target_info")
	assert.Contains(t, body, "codemerge_alignments_total")
}

func TestPrometheusHandler_IndependentRegistries(t *testing.T) {
	t.Parallel()

	_, _, err := observability.PrometheusHandler()
	require.NoError(t, err)

	_, _, err = observability.PrometheusHandler()
	require.NoError(t, err)
}
