package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/abdelrahman543873/coffeshop/internal/logging"
	"github.com/abdelrahman543873/coffeshop/internal/server/auth"
	"github.com/abdelrahman543873/coffeshop/internal/server/repository"
	"github.com/abdelrahman543873/coffeshop/internal/server/service"
)

var (
	errMalformedBody = errors.New("malformed request body")
	errBodyTooLarge  = errors.New("request body too large")
)

// statusError forces a specific status onto the envelope.
type statusError int

func (e statusError) Error() string { return fmt.Sprintf("http status %d", int(e)) }

var statusMessages = map[int]string{
	http.StatusBadRequest:                   "bad request",
	http.StatusUnauthorized:                 "unauthorized",
	http.StatusForbidden:                    "forbidden",
	http.StatusNotFound:                     "resource not found",
	http.StatusMethodNotAllowed:             "method not allowed",
	http.StatusNotAcceptable:                "not acceptable",
	http.StatusRequestTimeout:               "request timeout",
	http.StatusConflict:                     "conflict",
	http.StatusGone:                         "gone",
	http.StatusLengthRequired:               "length required",
	http.StatusPreconditionFailed:           "precondition failed",
	http.StatusRequestEntityTooLarge:        "payload too large",
	http.StatusRequestURITooLong:            "uri too long",
	http.StatusRequestedRangeNotSatisfiable: "range not satisfiable",
	http.StatusExpectationFailed:            "expectation failed",
	http.StatusTeapot:                       "i'm a teapot",
	http.StatusUnprocessableEntity:          "unprocessable",
	http.StatusLocked:                       "locked",
	http.StatusFailedDependency:             "failed dependency",
	http.StatusTooManyRequests:              "too many requests",
	http.StatusRequestHeaderFieldsTooLarge:  "request header fields too large",
	http.StatusUnavailableForLegalReasons:   "unavailable for legal reasons",
	http.StatusInternalServerError:          "internal server error",
	http.StatusNotImplemented:               "not implemented",
	http.StatusBadGateway:                   "bad gateway",
	http.StatusServiceUnavailable:           "service unavailable",
	http.StatusGatewayTimeout:               "gateway timeout",
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func statusMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return statusMessages[http.StatusInternalServerError]
}

// statusFor classifies err. Create failures stay 404 even when caused by a
// conflict, so ErrCreateFailed is checked before ErrConflict.
func statusFor(err error) int {
	var se statusError
	switch {
	case errors.As(err, &se):
		return int(se)
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errMalformedBody), errors.Is(err, service.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrAuthHeaderMissing),
		errors.Is(err, auth.ErrAuthHeaderMalformed),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrKeyNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrKeySetUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrCreateFailed),
		errors.Is(err, service.ErrEmptyCollection),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int) {
	writeJSON(w, status, errorEnvelope{Success: false, Error: status, Message: statusMessage(status)})
}

type handlerFunc func(w http.ResponseWriter, req *http.Request) error

// handle adapts an error-returning handler; every failure is rendered
// through fail.
func (r *Router) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := fn(w, req); err != nil {
			r.fail(w, req, err)
		}
	}
}

// recoverer turns a panic anywhere below it into the 500 envelope. Once the
// response has started only the panic is logged.
func (r *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		}
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			err := fmt.Errorf("panic: %v", p)
			if ww.Status() != 0 {
				logging.FromContext(req.Context(), r.logger).Error("panic after response started",
					"status", ww.Status(), "error", err)
				return
			}
			r.fail(ww, req, err)
		}()
		next.ServeHTTP(ww, req)
	})
}

func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(req.Context(), r.logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	writeError(w, status)
}
