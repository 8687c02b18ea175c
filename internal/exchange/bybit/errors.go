package bybit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
)

// BybitError represents a Bybit API error with additional context
type BybitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BybitError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Bybit API error %d: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey       = 10003
	ErrCodeInvalidSignature    = 10004
	ErrCodeInvalidTimestamp    = 10005
	ErrCodeRateLimitExceeded   = 10006
	ErrCodeOrderNotFound       = 110001
	ErrCodeInsufficientBalance = 110007
	ErrCodeInvalidQuantity     = 110020
	ErrCodeNotModified         = 34040
)

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	var bybitErr *BybitError
	if !errors.As(err, &bybitErr) {
		return false
	}
	switch bybitErr.Code {
	case ErrCodeRateLimitExceeded,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsAuthenticationError checks if the error is related to authentication
func IsAuthenticationError(err error) bool {
	var bybitErr *BybitError
	if errors.As(err, &bybitErr) {
		switch bybitErr.Code {
		case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodeInvalidTimestamp:
			return true
		}
	}
	return false
}

// NewBybitError creates a new BybitError
func NewBybitError(code int, message string, details ...string) *BybitError {
	err := &BybitError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// decodeResult checks the envelope of an SDK response and unmarshals its
// result into out.
func decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok || serverResp == nil {
		return fmt.Errorf("invalid response type %T", response)
	}
	if serverResp.RetCode != 0 {
		return NewBybitError(serverResp.RetCode, serverResp.RetMsg)
	}
	if out == nil {
		return nil
	}
	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// executionError maps a gateway failure onto the bot taxonomy, keeping the
// venue rejection code.
func executionError(operation string, err error) error {
	var bybitErr *BybitError
	botErr := boterrors.NewExecutionError("bybit", operation, err)
	if errors.As(err, &bybitErr) {
		botErr = botErr.WithCode(strconv.Itoa(bybitErr.Code))
		switch bybitErr.Code {
		case ErrCodeRateLimitExceeded:
			botErr.Underlying = fmt.Errorf("%w: %v", exchange.ErrRateLimitExceeded, err)
		case ErrCodeOrderNotFound:
			botErr.Underlying = fmt.Errorf("%w: %v", exchange.ErrOrderNotFound, err)
		}
	}
	return botErr
}

// marketDataError wraps a read failure.
func marketDataError(operation string, err error) error {
	botErr := boterrors.NewMarketDataError("bybit", operation, err)
	if IsRetryableError(err) {
		botErr = botErr.WithRetryable(true)
	}
	return botErr
}
