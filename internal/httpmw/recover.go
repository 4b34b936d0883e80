package httpmw

import (
	"bufio"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/log"
	"github.com/keithlinneman/sopranos-api/internal/xerrors"
)

// headerTracker records whether the handler has committed a status line.
type headerTracker struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *headerTracker) Flush() {
	t.wroteHeader = true
	_ = http.NewResponseController(t.ResponseWriter).Flush()
}

// Hijack hands the connection over; nothing may be written after it.
func (t *headerTracker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	t.wroteHeader = true
	return http.NewResponseController(t.ResponseWriter).Hijack()
}

func (t *headerTracker) Unwrap() http.ResponseWriter { return t.ResponseWriter }

// Recover turns handler panics into a logged error and a generic 500 from
// the error reporter. If the handler already sent headers the response is
// left as is. http.ErrAbortHandler is re-panicked so net/http can abort the
// connection. onPanic may be nil.
func Recover(L log.Logger, onPanic func()) Middleware {
	if L == nil {
		L = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &headerTracker{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				var err error
				switch v := rec.(type) {
				case error:
					err = xerrors.Wrap(v, "panic")
				default:
					err = xerrors.Newf("panic: %v", v)
				}

				ctx := r.Context()
				L.Error(ctx, err, "httpserver panic recovered",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"panic_stack", string(debug.Stack()),
					"http.response.headers_sent", tw.wroteHeader,
				)
				if onPanic != nil {
					onPanic()
				}

				if tw.wroteHeader {
					return
				}
				// already logged with the stack, write the body directly
				status, body := apierr.Report(apierr.Generic("Internal server error"))
				apierr.WriteJSON(ctx, w, status, body)
			}()
			next.ServeHTTP(tw, r)
		})
	}
}
