// Package errors provides standardized error handling for the answer pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeTransientProviderFailure ErrorCode = "TRANSIENT_PROVIDER_FAILURE"
	ErrCodeProviderTimeout          ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeNoEvidence               ErrorCode = "NO_EVIDENCE"

	ErrCodeSynthesisParseError ErrorCode = "SYNTHESIS_PARSE_ERROR"
	ErrCodeSynthesisFailed     ErrorCode = "SYNTHESIS_FAILED"

	ErrCodeClarificationRequired ErrorCode = "CLARIFICATION_REQUIRED"
	ErrCodeUpstreamTimeout       ErrorCode = "UPSTREAM_TIMEOUT"

	ErrCodeLLMTimeout     ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"

	ErrCodeSessionStoreFailed ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeCacheFailed        ErrorCode = "CACHE_FAILED"
	ErrCodeInvalidPlan        ErrorCode = "INVALID_PLAN"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTransientProviderFailureError creates a recoverable provider error.
// The pipeline proceeds with partial results when at least one provider succeeds.
func NewTransientProviderFailureError(providerID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientProviderFailure,
		Message:   "Provider call failed",
		Details:   fmt.Sprintf("providerId: %s, error: %s", providerID, err.Error()),
		Retryable: true,
		Metadata:  map[string]interface{}{"providerId": providerID},
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a recoverable per-call deadline error.
func NewProviderTimeoutError(providerID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Provider call exceeded its deadline",
		Details:   fmt.Sprintf("providerId: %s", providerID),
		Retryable: true,
		Metadata:  map[string]interface{}{"providerId": providerID},
		Timestamp: time.Now().UTC(),
	}
}

// NewNoEvidenceError signals that every provider failed or returned empty
// while the grounding mode required evidence. Surfaced as a degraded answer.
func NewNoEvidenceError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoEvidence,
		Message:   "No evidence available for grounded synthesis",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisParseError creates a bounded-retry parse error.
func NewSynthesisParseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSynthesisParseError,
		Message:   "Model output could not be parsed into an answer",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSynthesisFailedError creates a retryable synthesis error.
func NewSynthesisFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSynthesisFailed,
		Message:   "Synthesis call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewClarificationRequiredError marks the clarification terminal branch.
// This is a valid terminal state, not a failure.
func NewClarificationRequiredError(questions []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeClarificationRequired,
		Message:   "Query requires clarification before retrieval",
		Details:   strings.Join(questions, "; "),
		Retryable: false,
		Metadata:  map[string]interface{}{"questions": questions},
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamTimeoutError creates the end-to-end deadline error. The pipeline
// returns a best-effort answer built from whatever completed.
func NewUpstreamTimeoutError(elapsed time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamTimeout,
		Message:   "Overall request deadline exceeded",
		Details:   fmt.Sprintf("elapsed: %s", elapsed),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable language-model timeout error.
func NewLLMTimeoutError(stage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Language model call timeout",
		Details:   fmt.Sprintf("stage: %s", stage),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMUnavailableError creates the only request-fatal error: the language
// model capability cannot be reached at all.
func NewLLMUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMUnavailable,
		Message:   "Language model capability unreachable",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionStoreFailedError creates a retryable session store error.
func NewSessionStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Session store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheFailedError creates a retryable cache error. Cache failures never
// fail the request; the stage recomputes instead.
func NewCacheFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheFailed,
		Message:   "Cache operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPlanError creates a non-retryable planner error.
func NewInvalidPlanError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPlan,
		Message:   "Retrieval plan could not be constructed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsFatal reports whether an error code aborts the request outright.
// Only loss of the language-model capability is fatal; every other failure
// mode degrades the answer instead.
func IsFatal(code ErrorCode) bool {
	return code == ErrCodeLLMUnavailable
}

// GetRetryCount returns the recommended in-request retry count per code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSynthesisFailed, ErrCodeSessionStoreFailed:
		return 2

	case ErrCodeSynthesisParseError, ErrCodeLLMTimeout:
		return 1 // bounded single retry

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "EVIDENCE"):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "SYNTHESIS") || strings.Contains(codeStr, "LLM"):
		return "MODEL"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "CACHE"):
		return "STORE"
	case strings.Contains(codeStr, "CLARIFICATION") || strings.Contains(codeStr, "PLAN"):
		return "PIPELINE"
	default:
		return "OTHER"
	}
}
