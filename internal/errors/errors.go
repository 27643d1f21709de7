package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"

	"github.com/opsboard/sopmatch/internal/types"
)

// ErrorCategory classifies an error for handling and reporting.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryDatabase   ErrorCategory = "database"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryRateLimit  ErrorCategory = "rate_limit"
	CategoryInternal   ErrorCategory = "internal"
)

// AppError wraps an errbuilder error with the HTTP mapping the route
// boundary needs to produce the uniform envelope.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Code returns the wire-level error code for the category.
func (e *AppError) Code() string {
	switch e.Category {
	case CategoryValidation:
		return "VALIDATION_ERROR"
	case CategoryDatabase:
		return "DATABASE_ERROR"
	case CategoryNotFound:
		return "NOT_FOUND"
	case CategoryRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code(), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// Envelope renders the error as a failed response envelope.
func (e *AppError) Envelope() types.Envelope {
	return types.Fail(e.ErrBuilder.Msg, e.Code())
}

// NewAppError creates an AppError from an errbuilder with HTTP context.
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError creates a validation error reported with HTTP 400.
func NewValidationError(message string, details ...interface{}) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(details) > 0 {
		errorMap := errbuilder.ErrorMap{}
		errorMap.Set("validation_details", fmt.Errorf("%v", details[0]))
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewDatabaseError creates a persistence error reported with HTTP 500.
// Persistence failures are never retried automatically.
func NewDatabaseError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryDatabase, http.StatusInternalServerError)
}

// NewNotFoundError creates a missing-entity error reported with HTTP 404.
func NewNotFoundError(entity, id string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s not found: %s", entity, id))

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewRateLimitError creates a quota-exceeded error reported with HTTP 429.
func NewRateLimitError(retryAfter string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("retry_after", errors.New(retryAfter))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("Rate limit exceeded").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError creates a generic internal error reported with HTTP 500.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryInternal, http.StatusInternalServerError)
}

// ToAppError converts any error to an AppError. Unrecognized errors become
// internal errors with a generic message so internals do not leak to callers.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewInternalError("request cancelled", err)
	}

	return NewInternalError("an unexpected error occurred", err)
}

// Respond writes the AppError for err to the response as a failed envelope
// and logs it. This is the single conversion point at the route boundary.
func Respond(c *gin.Context, err error) {
	appErr := ToAppError(err)
	LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr.Envelope())
}

// ErrorHandler is a Gin middleware converting accumulated handler errors
// into the uniform envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			Respond(c, c.Errors.Last().Err)
		}
	}
}

// RecoveryHandler provides panic recovery with an envelope response.
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		appErr := NewInternalError(
			"internal server error",
			fmt.Errorf("panic recovered: %v", recovered),
		)
		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Envelope())
	})
}

// LogError logs an error with request context at a level matching its category.
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.Code(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryNotFound:
		logEntry.Warn(err.ErrBuilder.Msg)
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Error(err.ErrBuilder.Msg)
		}
	}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}

// SafeClose closes a resource and logs any error instead of returning it.
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", resourceName, "error", err)
	}
}
