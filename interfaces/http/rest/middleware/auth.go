package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"catalog-staging/pkg/auth"
	"catalog-staging/pkg/common"
)

// Authenticate validates the bearer token and stores the user id in
// the request context. The user id doubles as the staging session id,
// so every admin edits in their own workspace.
func Authenticate(validator *auth.JWTValidator, ipLimiter *auth.IPRateLimiter, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ipLimiter != nil {
				allowed, _ := ipLimiter.Allow(r.Context(), clientIP(r))
				if !allowed {
					common.RespondError(w, http.StatusTooManyRequests,
						common.StandardErrorCodes.TooManyRequests, "Rate limit exceeded")
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				common.RespondError(w, http.StatusUnauthorized,
					common.StandardErrorCodes.Unauthorized, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				common.RespondError(w, http.StatusUnauthorized,
					common.StandardErrorCodes.Unauthorized, "Invalid authorization header format")
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				logger.Debug("token validation failed", zap.Error(err))
				message := "Invalid token"
				if err == auth.ErrExpiredToken {
					message = "Token has expired"
				}
				common.RespondError(w, http.StatusUnauthorized,
					common.StandardErrorCodes.Unauthorized, message)
				return
			}

			ctx := common.WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP extracts the client address, trusting chi's RealIP
// middleware to have rewritten RemoteAddr already
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		return addr[:idx]
	}
	return addr
}
