package routes

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/taskcluster/slugid-go/slugid"

	"github.com/dogeunblocker/doge/v4/logging"
)

// responseWriter records the status of a response.  It passes Flush and
// Hijack through so that streaming and upgrades keep working.
type responseWriter struct {
	http.ResponseWriter
	status   int
	size     int64
	hijacked bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *responseWriter) Flush() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(w.ResponseWriter).Hijack()
	if err == nil {
		w.hijacked = true
	}
	return conn, rw, err
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// started reports whether anything has been sent to the client.
func (w *responseWriter) started() bool {
	return w.status != 0 || w.hijacked
}

// withRequestID assigns each request a slugid, echoes it in a response
// header and attaches it to the request's log entry.
func withRequestID(logger *logrus.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := slugid.Nice()
		w.Header().Set(RequestIDHeader, id)

		entry := logger.WithFields(logrus.Fields{
			"request-id":  id,
			"remote-addr": r.RemoteAddr,
		})
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r.WithContext(logging.NewContext(r.Context(), entry)))

		entry.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rw.status,
			"bytes":    rw.size,
			"hijacked": rw.hijacked,
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}

// recoverer answers a panicking request with 500 and reports the panic to
// onPanic.  http.ErrAbortHandler is passed through to net/http.
func recoverer(logger *logrus.Logger, onPanic func(interface{}), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			crash := recover()
			if crash == nil {
				return
			}
			if crash == http.ErrAbortHandler {
				panic(crash)
			}
			logging.FromContext(r.Context(), logger).WithFields(logrus.Fields{
				"path":  r.URL.Path,
				"panic": fmt.Sprint(crash),
			}).Error("Recovered from panic:\n " + string(debug.Stack()))

			if rw, ok := w.(*responseWriter); !ok || !rw.started() {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
			if onPanic != nil {
				onPanic(crash)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
