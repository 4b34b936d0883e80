// Package characterhttp serves the character lookup endpoints.
//
// Both endpoints run the same ordered chain: rate limit, then parameter
// validation, then the handler. Each stage can answer the request itself.
// Handler failures are returned as errors and reported once by apierr.
package characterhttp

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/characters"
	"github.com/keithlinneman/sopranos-api/internal/httpmw"
	"github.com/keithlinneman/sopranos-api/internal/log"
	"github.com/keithlinneman/sopranos-api/internal/validate"
)

const basePath = "/api/characters"

// Store is the lookup surface the handlers need.
type Store interface {
	FindByID(id int) (characters.Character, error)
	Search(f characters.Filter) []characters.Character
}

// Schemas for the two endpoints. Name filters are free text, bounded so a
// query string can't carry an arbitrarily large needle.
var (
	ListSchema = validate.Schema{
		{Name: "firstName", Type: validate.TypeString, Tag: "max=64"},
		{Name: "lastName", Type: validate.TypeString, Tag: "max=64"},
	}
	GetSchema = validate.Schema{
		{Name: "id", Type: validate.TypeString, Required: true, Pattern: regexp.MustCompile(`^\d+$`)},
	}
)

type API struct {
	store   Store
	limiter httpmw.Middleware
	errs    *apierr.Writer
	logger  log.Logger
}

// NewAPI wires the handlers. limiter may be nil to disable rate limiting,
// errs may be nil for an unobserved writer.
func NewAPI(store Store, limiter httpmw.Middleware, errs *apierr.Writer, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if errs == nil {
		errs = apierr.NewWriter(nil)
	}
	return &API{store: store, limiter: limiter, errs: errs, logger: logger}
}

// RegisterRoutes attaches the character endpoints. Paths without the
// trailing slash redirect permanently to the canonical form.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get(basePath+"/", api.chain("characters.list", ListSchema, api.HandleList))
	r.Get(basePath+"/{id}/", api.chain("characters.get", GetSchema, api.HandleGet))

	r.Get(basePath, redirectToSlash)
	r.Get(basePath+"/{id}", redirectToSlash)
}

func (api *API) chain(name string, schema validate.Schema, h func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return httpmw.Chain(
		api.errs.Handle(h),
		httpmw.Scope(name),
		api.limiter,
		validate.Middleware(schema, api.errs),
	).ServeHTTP
}

// HandleList returns every character matching the optional name filters.
func (api *API) HandleList(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	p := validate.ParamsFromContext(ctx)

	f := characters.Filter{FirstName: stringParam(p, "firstName"), LastName: stringParam(p, "lastName")}
	out := api.store.Search(f)

	api.logger.Debug(ctx, "served character list",
		"first_name_filter", f.FirstName,
		"last_name_filter", f.LastName,
		"results", len(out),
	)
	apierr.WriteJSON(ctx, w, http.StatusOK, out)
	return nil
}

// HandleGet returns one character by its 1-based id.
func (api *API) HandleGet(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	raw := stringParam(validate.ParamsFromContext(ctx), "id")
	if raw == "" {
		raw = chi.URLParam(r, "id")
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		// digits only by now, so this is overflow: no such record either way
		return apierr.NotFound("Character", raw, apierr.WithCause(err))
	}

	c, err := api.store.FindByID(id)
	if err != nil {
		return err
	}
	apierr.WriteJSON(ctx, w, http.StatusOK, c)
	return nil
}

func stringParam(p validate.Params, key string) string {
	s, _ := p[key].(string)
	return s
}

// redirectToSlash answers 308 so clients replay the same method and body.
func redirectToSlash(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusPermanentRedirect)
}
