package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
)

type paramsKey struct{}

// ParamsFromContext returns the parameters Middleware validated, or nil.
func ParamsFromContext(ctx context.Context) Params {
	p, _ := ctx.Value(paramsKey{}).(Params)
	return p
}

// Gather collects parameters from the query string (first value per key),
// a JSON object body, and chi route params, later sources winning.
// The body is restored for downstream readers.
func Gather(r *http.Request) (Params, error) {
	p := make(Params)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}

	if r.Body != nil && r.Body != http.NoBody && isJSON(r.Header.Get("Content-Type")) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if len(bytes.TrimSpace(raw)) > 0 {
			var obj map[string]any
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, err
			}
			for k, v := range obj {
				p[k] = v
			}
		}
	}

	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, k := range rc.URLParams.Keys {
			if k == "*" || i >= len(rc.URLParams.Values) {
				continue
			}
			p[k] = rc.URLParams.Values[i]
		}
	}
	return p, nil
}

func isJSON(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

// Middleware rejects requests whose parameters fail schema with 400 and
// {"message": "<reason>"}. errs may be nil.
func Middleware(schema Schema, errs *apierr.Writer) func(http.Handler) http.Handler {
	if errs == nil {
		errs = apierr.NewWriter(nil)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			params, err := Gather(r)
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					errs.Write(ctx, w, apierr.InvalidInput("Request body too large",
						apierr.WithStatus(http.StatusRequestEntityTooLarge), apierr.Compact()))
					return
				}
				errs.Write(ctx, w, apierr.InvalidInput("Malformed request body", apierr.Compact(), apierr.WithCause(err)))
				return
			}
			if err := Validate(params, schema); err != nil {
				errs.Write(ctx, w, apierr.InvalidInput(err.Error(), apierr.Compact()))
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, paramsKey{}, params)))
		})
	}
}
