package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"augeias/pkg/collection"
	"augeias/pkg/janitor"
	"augeias/pkg/storage/fsstore"
)

type fakeJanitor struct {
	stats janitor.Stats
	calls int
	err   error
}

func (f *fakeJanitor) RunOnce(context.Context) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.stats.Runs++
	f.stats.LastRun = time.Now().UTC()
	return nil
}

func (f *fakeJanitor) Stats() janitor.Stats { return f.stats }

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthAndVersion(t *testing.T) {
	mux := NewMux(Options{Version: "1.2.3", Address: ":6543", Ready: func() bool { return false }})

	rec := serve(t, mux, http.MethodGet, "/admin/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health["status"])
	require.Equal(t, false, health["ready"])
	require.Equal(t, ":6543", health["address"])

	rec = serve(t, mux, http.MethodGet, "/admin/version")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"version":"1.2.3"`)

	rec = serve(t, mux, http.MethodPost, "/admin/version")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCollections(t *testing.T) {
	s, err := fsstore.New(t.TempDir(), fsstore.WithNoSync(true))
	require.NoError(t, err)
	reg, err := collection.NewRegistry(
		collection.New("besluiten", s),
		collection.New("beeldbank", s, collection.WithURIGenerator(collection.DefaultURIGenerator{Base: "https://id.example.org/"})),
	)
	require.NoError(t, err)

	rec := serve(t, NewCollectionsHandler(reg), http.MethodGet, "/admin/collections")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []CollectionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "beeldbank", got[0].Name)
	require.Equal(t, "pairtree", got[0].Backend)
	require.Equal(t, "https://id.example.org/collections/beeldbank", got[0].URI)
	require.Equal(t, "besluiten", got[1].Name)

	rec = serve(t, NewCollectionsHandler(nil), http.MethodGet, "/admin/collections")
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestJanitorStats(t *testing.T) {
	j := &fakeJanitor{stats: janitor.Stats{Runs: 4, TempFilesRemoved: 2}}

	rec := serve(t, NewJanitorStatsHandler(j), http.MethodGet, "/admin/janitor/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var got janitor.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.EqualValues(t, 4, got.Runs)
	require.EqualValues(t, 2, got.TempFilesRemoved)

	rec = serve(t, NewJanitorStatsHandler(j), http.MethodPost, "/admin/janitor/stats")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, NewJanitorStatsHandler(nil), http.MethodGet, "/admin/janitor/stats")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestJanitorRunOnce(t *testing.T) {
	j := &fakeJanitor{}
	h := NewJanitorRunOnceHandler(j)

	rec := serve(t, h, http.MethodPost, "/admin/janitor/runonce")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, j.calls)
	var got janitor.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.EqualValues(t, 1, got.Runs)
	require.False(t, got.LastRun.IsZero())

	rec = serve(t, h, http.MethodGet, "/admin/janitor/runonce")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	j.err = errors.New("boom")
	rec = serve(t, h, http.MethodPost, "/admin/janitor/runonce")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, NewJanitorRunOnceHandler(nil), http.MethodPost, "/admin/janitor/runonce")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
