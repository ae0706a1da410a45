package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/convointel/internal/api/response"
)

const healthTimeout = 2 * time.Second

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. The
// database and cache are checked concurrently.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		dbStatus, cacheStatus := "ok", "ok"
		var g errgroup.Group
		g.Go(func() error {
			if err := db.Ping(ctx); err != nil {
				dbStatus = "degraded"
			}
			return nil
		})
		g.Go(func() error {
			if err := cache.Ping(ctx); err != nil {
				cacheStatus = "degraded"
			}
			return nil
		})
		_ = g.Wait()

		checks := map[string]string{
			"database": dbStatus,
			"cache":    cacheStatus,
		}
		if dbStatus != "ok" || cacheStatus != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
