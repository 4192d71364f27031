// Package admin serves the control-plane endpoints on the optional admin
// listener.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"augeias/pkg/collection"
	"augeias/pkg/janitor"
	"augeias/pkg/storage"
)

// Janitor is the subset of *janitor.Janitor the admin endpoints drive.
type Janitor interface {
	RunOnce(ctx context.Context) error
	Stats() janitor.Stats
}

// Options carries what the admin endpoints report on.
type Options struct {
	Version      string
	Address      string
	AdminAddress string
	Registry     *collection.Registry
	Janitor      Janitor // nil when the janitor is disabled
	Ready        func() bool
}

// NewMux returns the admin router.
func NewMux(o Options) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/admin/health", NewHealthHandler(o))
	mux.Handle("/admin/version", NewVersionHandler(o.Version))
	mux.Handle("/admin/collections", NewCollectionsHandler(o.Registry))
	mux.Handle("/admin/janitor/stats", NewJanitorStatsHandler(o.Janitor))
	mux.Handle("/admin/janitor/runonce", NewJanitorRunOnceHandler(o.Janitor))
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// NewHealthHandler reports liveness and readiness along with version and
// listen addresses.
func NewHealthHandler(o Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		ready := o.Ready == nil || o.Ready()
		resp := map[string]any{
			"status":    "ok",
			"ready":     ready,
			"version":   o.Version,
			"address":   o.Address,
			"admin":     o.AdminAddress,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if o.Registry != nil {
			resp["collections"] = o.Registry.Len()
		}
		writeJSON(w, resp)
	}
}

// NewVersionHandler returns GET /admin/version.
func NewVersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, map[string]string{
			"version":   version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// CollectionInfo describes one registered collection.
type CollectionInfo struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	URI     string `json:"uri"`
}

// NewCollectionsHandler lists the configured collections with their backend.
func NewCollectionsHandler(reg *collection.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		out := []CollectionInfo{}
		if reg != nil {
			for _, c := range reg.All() {
				out = append(out, CollectionInfo{
					Name:    c.Name,
					Backend: storage.BackendName(c.Store),
					URI:     c.URIs.CollectionURI(c.Name),
				})
			}
		}
		writeJSON(w, out)
	}
}

// NewJanitorStatsHandler returns GET /admin/janitor/stats. A nil janitor
// reports zero stats.
func NewJanitorStatsHandler(j Janitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if j == nil {
			writeJSON(w, janitor.Stats{})
			return
		}
		writeJSON(w, j.Stats())
	}
}

// NewJanitorRunOnceHandler returns POST /admin/janitor/runonce. It runs one
// synchronous pass and responds with the updated stats.
func NewJanitorRunOnceHandler(j Janitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if j == nil {
			http.Error(w, "janitor not configured", http.StatusServiceUnavailable)
			return
		}
		if err := j.RunOnce(r.Context()); err != nil {
			http.Error(w, "janitor run failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, j.Stats())
	}
}
