package common

import (
	"context"
	"time"
)

// ContextKey is a typed key for context values
type ContextKey string

const (
	// UserIDKey identifies the authenticated user; one staging session exists per user
	UserIDKey ContextKey = "userID"
	// RequestIDKey carries the request correlation id
	RequestIDKey ContextKey = "requestID"
	// StartTimeKey records when request processing began
	StartTimeKey ContextKey = "startTime"
)

// WithUserID adds a user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(RequestIDKey).(string)
	return requestID, ok
}

// WithStartTime adds the processing start time to the context
func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, StartTimeKey, startTime)
}

// GetElapsedTime returns the elapsed time since the start time in the context
func GetElapsedTime(ctx context.Context) time.Duration {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return time.Since(startTime)
	}
	return 0
}
