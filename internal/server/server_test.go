package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codemerge/internal/api"
	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/internal/server"
	"github.com/Sumatoshi-tech/codemerge/internal/service"
	"github.com/Sumatoshi-tech/codemerge/pkg/config"
	"github.com/Sumatoshi-tech/codemerge/pkg/render"
)

func newServer(t *testing.T, maxBody, maxFile int64) *server.Server {
	t.Helper()

	metricsHandler, mp, err := observability.PrometheusHandler()
	require.NoError(t, err)

	meter := mp.Meter("test")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	mm, err := observability.NewMergeMetrics(meter)
	require.NoError(t, err)

	opts, err := service.OptionsFrom(config.Default())
	require.NoError(t, err)

	opts.MaxFileSize = maxFile

	handler := api.NewHandler(service.New(opts, nil, nil, mm), render.Options{})

	return server.New(handler, maxBody, server.Deps{RED: red, Metrics: metricsHandler})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequestWithContext(context.Background(), method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestServer_Diff(t *testing.T) {
	t.Parallel()

	h := newServer(t, 0, 0).Handler()

	rec := do(t, h, http.MethodPost, "/v1/diff", `{"left":"a\nb\n","right":"a\nc\n"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp api.DiffResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, api.Counts{Unchanged: 1, Inserted: 1, Deleted: 1}, resp.Counts)
	assert.Len(t, resp.Events, 3)
}

func TestServer_MergeAndMerge3(t *testing.T) {
	t.Parallel()

	h := newServer(t, 0, 0).Handler()

	rec := do(t, h, http.MethodPost, "/v1/merge", `{"left":"a\nb\n","right":"a\nx\nb\n","include_tree":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var merged api.MergeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &merged))
	assert.Equal(t, "a\nx\nb\n", merged.Merged)
	require.NotNil(t, merged.Tree)

	rec = do(t, h, http.MethodPost, "/v1/merge3",
		`{"base":"a\n","version1":"a\nx\n","version2":"a\ny\n","label1":"ours","label2":"theirs"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var merged3 api.Merge3Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &merged3))
	assert.Equal(t, 1, merged3.Conflicts)
	assert.Equal(t, "a\n<<<<<<< ours\nx\n=======\ny\n>>>>>>> theirs\n", merged3.Merged)
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		maxBody int64
		maxFile int64
		method  string
		path    string
		body    string
		want    int
	}{
		{name: "malformed json", method: http.MethodPost, path: "/v1/diff", body: `{"left":`, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/v1/diff", body: `{"lft":"a"}`, want: http.StatusBadRequest},
		{name: "bad resolution", method: http.MethodPost, path: "/v1/merge3", body: `{"resolution":"mine"}`, want: http.StatusBadRequest},
		{
			name: "body too large", maxBody: 8,
			method: http.MethodPost, path: "/v1/diff", body: `{"left":"aaaaaaaaaa"}`, want: http.StatusRequestEntityTooLarge,
		},
		{
			name: "file too large", maxFile: 2,
			method: http.MethodPost, path: "/v1/diff", body: `{"left":"a\nb\nc\n"}`, want: http.StatusRequestEntityTooLarge,
		},
		{name: "binary", method: http.MethodPost, path: "/v1/diff", body: `{"left":"\u0000\u0001"}`, want: http.StatusUnprocessableEntity},
		{name: "wrong method", method: http.MethodGet, path: "/v1/diff", want: http.StatusMethodNotAllowed},
		{name: "unknown route", method: http.MethodGet, path: "/v2/diff", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, newServer(t, tt.maxBody, tt.maxFile).Handler(), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	h := newServer(t, 0, 0).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/diff", `{"left":"a","right":"b"}`).Code)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "codemerge_requests_total")
	assert.Contains(t, rec.Body.String(), "codemerge_alignments_total")
}

func TestServer_ServeDrains(t *testing.T) {
	t.Parallel()

	srv := newServer(t, 0, 0)

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- srv.Serve(ctx, listener, config.Default().Server)
	}()

	url := "http://" + listener.Addr().String() + "/healthz"

	require.Eventually(t, func() bool {
		req, reqErr := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
		if reqErr != nil {
			return false
		}

		resp, getErr := http.DefaultClient.Do(req)
		if getErr != nil {
			return false
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
