package agent

import (
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"

	"github.com/evansims/fgacache/pkg/authclaims"
)

// RequestIDHeader echoes the id assigned to each request, so a failing call
// can be matched to its log lines and trace.
const RequestIDHeader = "X-Request-Id"

// requestIDMiddleware stamps every request with the active trace id when
// one exists, else a fresh ULID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			if span := trace.SpanContextFromContext(r.Context()); span.HasTraceID() {
				requestID = span.TraceID().String()
			} else {
				requestID = ulid.Make().String()
			}
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}

// authnMiddleware authenticates every request except the health probe. The
// bearer token moves from the Authorization header into gRPC metadata so
// the authenticators stay transport-agnostic.
func (a *Agent) authnMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if header := r.Header.Get("Authorization"); header != "" {
			ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", header))
		} else {
			ctx = metadata.NewIncomingContext(ctx, metadata.MD{})
		}

		claims, err := a.authenticator.Authenticate(ctx)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", unauthenticatedMessage(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(authclaims.ContextWithAuthClaims(ctx, claims)))
	})
}

func unauthenticatedMessage(err error) string {
	// grpc status errors render as "rpc error: code = ... desc = ..."; only
	// the description is useful to an HTTP caller.
	msg := err.Error()
	if i := strings.LastIndex(msg, "desc = "); i >= 0 {
		return msg[i+len("desc = "):]
	}
	return msg
}
