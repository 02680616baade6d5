package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
)

// ActorHeader carries the identifier of the user driving an admin request.
const ActorHeader = "X-Actor-ID"

// RequestTrace populates the context with request-scoped AuditInfo so config changes can be attributed.
// Requests without the actor header are traced as anonymous.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if actor := r.Header.Get(ActorHeader); actor != "" {
			var err error
			audit, err = requesttrace.ForUser(actor, requestID)
			if err != nil {
				if logger != nil {
					logger.Warn("invalid actor header", zap.Error(err))
				}
				http.Error(w, "invalid actor", http.StatusBadRequest)
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			logger = logger.With(
				zap.String("actor_kind", string(audit.ActorKind)),
				zap.String("actor", audit.Actor()),
			)
			ctx = platformlogging.WithLogger(ctx, logger)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
