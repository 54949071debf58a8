// Package errors provides standardized error handling for the dispatch engine and its BPMN workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Dispatch run errors
const (
	ErrCodeConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"
	ErrCodeConnectionFailed     ErrorCode = "CONNECTION_FAILED"
	ErrCodeMessageSendFailed    ErrorCode = "MESSAGE_SEND_FAILED"
	ErrCodeMessageBuildFailed   ErrorCode = "MESSAGE_BUILD_FAILED"
)

// Hosting layer errors
const (
	ErrCodeInputParsingFailed     ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeInputValidationFailed  ErrorCode = "INPUT_VALIDATION_FAILED"
	ErrCodeRunRecordingFailed     ErrorCode = "RUN_RECORDING_FAILED"
	ErrCodeDuplicateRun           ErrorCode = "DUPLICATE_RUN"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeControlStoreFailed     ErrorCode = "CONTROL_STORE_FAILED"
)

// Generic codes
const (
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternalService     ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout             ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound    ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule        ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthenticationError ErrorCode = "AUTHENTICATION_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying transport or driver error.
func (e *StandardError) Unwrap() error {
	return e.Cause
}

// AsStandardError finds the first StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

// NewConfigurationError reports a missing or invalid run input. Raised before
// any connection attempt and never retried.
func NewConfigurationError(details string) *StandardError {
	return newError(ErrCodeConfigurationInvalid, "Invalid dispatch configuration", details, false, nil)
}

// NewConnectionFailedError reports that the transport session could not be
// opened or authenticated. Nothing has been sent when this is returned.
func NewConnectionFailedError(address string, err error) *StandardError {
	return newError(ErrCodeConnectionFailed, "Mail transport connection failed",
		fmt.Sprintf("address: %s, error: %v", address, err), true, err)
}

// NewMessageSendFailedError reports a single recipient failure.
func NewMessageSendFailedError(err error) *StandardError {
	return newError(ErrCodeMessageSendFailed, "Message delivery failed", err.Error(), false, err)
}

// NewMessageBuildFailedError reports a message that could not be encoded.
func NewMessageBuildFailedError(details string) *StandardError {
	return newError(ErrCodeMessageBuildFailed, "Message could not be built", details, false, nil)
}

func NewInputParsingError(err error) *StandardError {
	return newError(ErrCodeInputParsingFailed, "Failed to parse job variables", err.Error(), false, err)
}

func NewInputValidationError(details string) *StandardError {
	return newError(ErrCodeInputValidationFailed, "Job variables failed schema validation", details, false, nil)
}

// NewRunRecordingFailedError reports a history write failure.
func NewRunRecordingFailedError(runID string, err error) *StandardError {
	return newError(ErrCodeRunRecordingFailed, "Failed to record dispatch run",
		fmt.Sprintf("runId: %s, error: %v", runID, err), true, err)
}

func NewDuplicateRunError(runID string) *StandardError {
	return newError(ErrCodeDuplicateRun, "Dispatch run already recorded",
		fmt.Sprintf("runId: %s", runID), false, nil)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

func NewControlStoreError(operation string, err error) *StandardError {
	return newError(ErrCodeControlStoreFailed, "Run control store unavailable",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthenticationError, "Authentication failed", details, false, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes caught by
// boundary events in the campaign process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeConfigurationInvalid:  "DISPATCH_CONFIGURATION_INVALID",
	ErrCodeConnectionFailed:      "DISPATCH_CONNECTION_FAILED",
	ErrCodeInputParsingFailed:    "DISPATCH_INPUT_INVALID",
	ErrCodeInputValidationFailed: "DISPATCH_INPUT_INVALID",
	ErrCodeDuplicateRun:          "DISPATCH_DUPLICATE_RUN",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeConnectionFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout,
		ErrCodeControlStoreFailed:
		return 2

	default:
		// Configuration, input and per-message errors: no retry
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIGURATION") || strings.Contains(codeStr, "INPUT"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CONNECTION") || strings.Contains(codeStr, "MESSAGE"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "RUN") || strings.Contains(codeStr, "CONTROL_STORE"):
		return "PERSISTENCE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "EXTERNAL"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}
