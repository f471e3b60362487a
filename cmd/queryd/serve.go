package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcadia-data/querylayer/env"
	"github.com/arcadia-data/querylayer/query"
)

// Route handlers are thin request/response glue over the executor's entry
// points; no query or cache logic lives here.

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := env.Load()
		if err != nil {
			return err
		}
		store := buildStore(cfg, log)
		defer store.Close()

		exec, conn, err := buildExecutor(cfg, store, log)
		if err != nil {
			return err
		}
		if err := conn.Connect(cmd.Context()); err != nil {
			return err
		}
		defer conn.Disconnect(context.Background())

		mux := http.NewServeMux()
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		})
		mux.HandleFunc("POST /api/query", handleQuery(exec))
		mux.HandleFunc("GET /api/cache/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, exec.CacheStats(r.Context()))
		})
		mux.HandleFunc("POST /api/cache/clear", func(w http.ResponseWriter, r *http.Request) {
			ok := exec.ClearCache(r.Context(), r.URL.Query().Get("pattern"))
			writeJSON(w, http.StatusOK, map[string]any{"cleared": ok})
		})

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		log.Info("serving query API", "addr", cfg.ListenAddr)
		return srv.ListenAndServe()
	},
}

type queryRequest struct {
	Query     string         `json:"query"`
	Params    map[string]any `json:"params"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	Cache     *bool          `json:"cache"`
	TTL       string         `json:"ttl"`
	Unlimited bool           `json:"unlimited"`
}

func handleQuery(exec *query.Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
			return
		}
		if req.Query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "query is required"})
			return
		}

		opts := query.Options{UseCache: true, Unlimited: req.Unlimited}
		if req.Cache != nil {
			opts.UseCache = *req.Cache
		}
		if req.TTL != "" {
			if d, err := time.ParseDuration(req.TTL); err == nil {
				opts.TTL = d
			}
		}

		if req.Page > 0 {
			page, err := exec.ExecutePaginated(r.Context(), req.Query, req.Page, req.PageSize, opts)
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, page)
			return
		}

		res, err := exec.Execute(r.Context(), req.Query, req.Params, opts)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
