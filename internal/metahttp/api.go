package metahttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/httpmw"
	"github.com/keithlinneman/sopranos-api/internal/log"
	"github.com/keithlinneman/sopranos-api/internal/version"
)

// Dataset describes the data being served.
type Dataset interface {
	DatasetVersion() string
	DatasetHash() string
	Len() int
}

// Limits is the rate limit a client can expect.
type Limits interface {
	Limit() int
	Window() time.Duration
}

// API implements GET /api/meta.
type API struct {
	dataset Dataset
	limits  Limits
	limiter httpmw.Middleware
	build   version.Info
	logger  log.Logger
	now     func() time.Time
}

// NewAPI wires the meta endpoint. limiter admits requests the same way as
// the character endpoints and may be nil to disable rate limiting.
func NewAPI(dataset Dataset, limits Limits, limiter httpmw.Middleware, build version.Info, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		dataset: dataset,
		limits:  limits,
		limiter: limiter,
		build:   build,
		logger:  logger,
		now:     time.Now,
	}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/meta", httpmw.Chain(
		http.HandlerFunc(api.HandleMeta),
		httpmw.Scope("meta.get"),
		api.limiter,
	).ServeHTTP)
}

type MetaResponse struct {
	App        string         `json:"app"`
	Build      version.Info   `json:"build"`
	Dataset    *DatasetInfo   `json:"dataset,omitempty"`
	RateLimit  *RateLimitInfo `json:"rate_limit,omitempty"`
	ServerTime time.Time      `json:"server_time"`
}

type DatasetInfo struct {
	Version string `json:"version"`
	SHA256  string `json:"sha256"`
	Records int    `json:"records"`
}

type RateLimitInfo struct {
	Limit         int     `json:"limit"`
	WindowSeconds float64 `json:"window_seconds"`
}

// HandleMeta serves build and dataset identity.
func (api *API) HandleMeta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := MetaResponse{
		App:        version.AppName,
		Build:      api.build,
		ServerTime: api.now().UTC().Truncate(time.Second),
	}
	if api.dataset != nil {
		resp.Dataset = &DatasetInfo{
			Version: api.dataset.DatasetVersion(),
			SHA256:  api.dataset.DatasetHash(),
			Records: api.dataset.Len(),
		}
	}
	if api.limits != nil {
		resp.RateLimit = &RateLimitInfo{
			Limit:         api.limits.Limit(),
			WindowSeconds: api.limits.Window().Seconds(),
		}
	}

	api.logger.Debug(ctx, "served meta", "build_version", api.build.Version)

	w.Header().Set("Cache-Control", "no-cache")
	apierr.WriteJSON(ctx, w, http.StatusOK, resp)
}
