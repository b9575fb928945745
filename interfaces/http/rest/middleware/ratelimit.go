package middleware

import (
	"net/http"

	"catalog-staging/pkg/auth"
	"catalog-staging/pkg/common"
)

// LimitPerUser throttles an endpoint per authenticated user. Applied
// to commit so a stuck retry loop cannot hammer the connector.
func LimitPerUser(limiter *auth.UserRateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := common.GetUserID(r.Context())
			if !ok {
				common.RespondError(w, http.StatusUnauthorized,
					common.StandardErrorCodes.Unauthorized, "Missing user context")
				return
			}

			allowed, _ := limiter.Allow(r.Context(), userID)
			if !allowed {
				common.RespondError(w, http.StatusTooManyRequests,
					common.StandardErrorCodes.TooManyRequests, "Commit rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
