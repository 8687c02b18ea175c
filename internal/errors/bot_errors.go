package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Startup errors that should stop the bot
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"

	// Single-operation failures; the engine skips the action and carries on
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryDataSource ErrorCategory = "DATA_SOURCE"
	ErrorCategoryExecution  ErrorCategory = "EXECUTION"
	ErrorCategoryMarketData ErrorCategory = "MARKET_DATA"

	// Transport level
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
)

// BotError represents a categorized error with context
type BotError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Code       string // venue rejection code, when there is one
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *BotError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
	if e.Code != "" {
		msg += fmt.Sprintf(" (code %s)", e.Code)
	}
	if e.Underlying != nil {
		msg += fmt.Sprintf(": %v", e.Underlying)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping
func (e *BotError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *BotError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the bot
func (e *BotError) IsFatal() bool {
	return e.Category == ErrorCategoryConfiguration || e.Category == ErrorCategoryCredentials
}

// NewBotError creates a new categorized bot error
func NewBotError(category ErrorCategory, component, operation, message string) *BotError {
	return &BotError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with bot error context
func WrapError(err error, category ErrorCategory, component, operation string) *BotError {
	if err == nil {
		return nil
	}

	return &BotError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *BotError) WithContext(key string, value interface{}) *BotError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode attaches a venue rejection code
func (e *BotError) WithCode(code string) *BotError {
	e.Code = code
	return e
}

// WithRetryable sets the retryable flag
func (e *BotError) WithRetryable(retryable bool) *BotError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary,
		ErrorCategoryRateLimit, ErrorCategoryDataSource:
		return true
	default:
		return false
	}
}

// CategorizeError attempts to categorize a generic error
func CategorizeError(err error, component, operation string) *BotError {
	if err == nil {
		return nil
	}

	var botErr *BotError
	if stderrors.As(err, &botErr) {
		return botErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return WrapError(err, ErrorCategoryTimeout, component, operation)
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return WrapError(err, ErrorCategoryNetwork, component, operation)
	}

	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "authentication") ||
		strings.Contains(errMsg, "unauthorized") {
		return WrapError(err, ErrorCategoryCredentials, component, operation)
	}

	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return WrapError(err, ErrorCategoryRateLimit, component, operation)
	}

	if strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "minimum") ||
		strings.Contains(errMsg, "maximum") {
		return WrapError(err, ErrorCategoryValidation, component, operation)
	}

	return WrapError(err, ErrorCategoryTemporary, component, operation)
}

// Common error constructors
func NewValidationError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryValidation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryConfiguration, component, operation, message)
}

func NewCredentialsError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryCredentials, component, operation, message)
}

func NewDataSourceError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryDataSource, component, operation)
}

func NewExecutionError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryExecution, component, operation)
}

func NewMarketDataError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryMarketData, component, operation)
}

// Is reports whether err is a BotError of the given category.
func Is(err error, category ErrorCategory) bool {
	var botErr *BotError
	if stderrors.As(err, &botErr) {
		return botErr.Category == category
	}
	return false
}

// RecoveryAction names what the engine does after an error
type RecoveryAction string

const (
	RecoveryActionRetry RecoveryAction = "RETRY"
	RecoveryActionSkip  RecoveryAction = "SKIP"
	RecoveryActionStop  RecoveryAction = "STOP"
	RecoveryActionWait  RecoveryAction = "WAIT"
)

// GetRecoveryAction suggests a recovery action based on error category
func (e *BotError) GetRecoveryAction() RecoveryAction {
	switch e.Category {
	case ErrorCategoryConfiguration, ErrorCategoryCredentials:
		return RecoveryActionStop
	case ErrorCategoryRateLimit:
		return RecoveryActionWait
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryDataSource:
		return RecoveryActionRetry
	default:
		// validation, execution and market data failures lose the opportunity
		return RecoveryActionSkip
	}
}
