package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/aluga-erp/aluga/internal/platform/httpx"
	"github.com/aluga-erp/aluga/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the history timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(shared.RateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Get("/contracts/{contractID}/history", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/contracts/{contractID}/history/export.csv", h.handleExport)
	})
}
