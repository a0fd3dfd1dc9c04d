package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop the bot
	ErrorCategoryConfig            ErrorCategory = "CONFIG"
	ErrorCategoryInsufficientFunds ErrorCategory = "INSUFFICIENT_FUNDS"
	ErrorCategoryExchangeFatal     ErrorCategory = "EXCHANGE_FATAL"
	ErrorCategoryInvariant         ErrorCategory = "INVARIANT"
	ErrorCategoryCredentials       ErrorCategory = "CREDENTIALS"

	// Non-critical errors that can be skipped or retried
	ErrorCategoryExchangeTransient ErrorCategory = "EXCHANGE_TRANSIENT"
	ErrorCategoryDuplicateOrder    ErrorCategory = "DUPLICATE_ORDER"
	ErrorCategoryNetwork           ErrorCategory = "NETWORK"
	ErrorCategoryTimeout           ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit         ErrorCategory = "RATE_LIMIT"
	ErrorCategoryLedger            ErrorCategory = "LEDGER"
)

// BotError represents a categorized error with context
type BotError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface
func (e *BotError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
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
	switch e.Category {
	case ErrorCategoryConfig, ErrorCategoryInsufficientFunds,
		ErrorCategoryExchangeFatal, ErrorCategoryInvariant, ErrorCategoryCredentials:
		return true
	default:
		return false
	}
}

// New creates a new categorized bot error
func New(category ErrorCategory, component, operation, message string) *BotError {
	return &BotError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Wrap wraps an existing error with bot error context
func Wrap(err error, category ErrorCategory, component, operation string) *BotError {
	if err == nil {
		return nil
	}
	return &BotError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable sets the retryable flag
func (e *BotError) WithRetryable(retryable bool) *BotError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimit, ErrorCategoryExchangeTransient:
		return true
	default:
		return false
	}
}

// HasCategory reports whether err (or anything it wraps) is a BotError of the
// given category.
func HasCategory(err error, category ErrorCategory) bool {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.Category == category
	}
	return false
}

// IsFatal reports whether err should halt the bot.
func IsFatal(err error) bool {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr.IsFatal()
	}
	return false
}

// CategorizeExchangeError classifies a raw exchange client error. Unknown
// errors are treated as transient so a single flaky call never kills a bot.
func CategorizeExchangeError(err error, component, operation string) *BotError {
	if err == nil {
		return nil
	}

	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "context deadline exceeded") {
		return Wrap(err, ErrorCategoryTimeout, component, operation)
	}
	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") {
		return Wrap(err, ErrorCategoryNetwork, component, operation)
	}
	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "signature") ||
		strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") {
		return Wrap(err, ErrorCategoryCredentials, component, operation)
	}
	if strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests") {
		return Wrap(err, ErrorCategoryRateLimit, component, operation)
	}
	if strings.Contains(errMsg, "insufficient") {
		return Wrap(err, ErrorCategoryInsufficientFunds, component, operation)
	}

	return Wrap(err, ErrorCategoryExchangeTransient, component, operation)
}

// Common error constructors

func NewConfigError(component, operation, message string) *BotError {
	return New(ErrorCategoryConfig, component, operation, message)
}

func NewInsufficientFundsError(component, operation, message string) *BotError {
	return New(ErrorCategoryInsufficientFunds, component, operation, message)
}

func NewExchangeFatalError(component, operation string, err error) *BotError {
	return Wrap(err, ErrorCategoryExchangeFatal, component, operation)
}

func NewExchangeTransientError(component, operation string, err error) *BotError {
	return Wrap(err, ErrorCategoryExchangeTransient, component, operation)
}

func NewDuplicateOrderError(component string, price float64) *BotError {
	return New(ErrorCategoryDuplicateOrder, component, "place_order",
		fmt.Sprintf("open order already exists at price %.8f", price))
}

func NewInvariantViolation(component, operation, message string) *BotError {
	return New(ErrorCategoryInvariant, component, operation, message)
}

func NewLedgerError(component, operation string, err error) *BotError {
	return Wrap(err, ErrorCategoryLedger, component, operation)
}
