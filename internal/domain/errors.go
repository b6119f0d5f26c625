package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrPolicyNotFound signals a missing policy document.
	ErrPolicyNotFound = fmt.Errorf("policy %w", ErrNotFound)
	// ErrInvalidInput signals a request the core refuses before any provider call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPromptInjection signals a message matching a blocked instruction pattern.
	ErrPromptInjection = errors.New("prompt contains unsafe instruction patterns")
	// ErrVectorDimMismatch signals a provider vector with an unexpected dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrVectorProviderMismatch signals vectors from different embedding models being compared.
	ErrVectorProviderMismatch = errors.New("vector provider mismatch")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized signals missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals a caller without the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrProviderKeyMissing signals a provider selected without a credential.
	ErrProviderKeyMissing = errors.New("llm provider key missing")
	// ErrEmptyResponse signals a vendor reply without usable content.
	ErrEmptyResponse = errors.New("llm returned empty response")
	// ErrRetryExhausted signals that one provider used up its attempts.
	ErrRetryExhausted = errors.New("llm retry exhausted")
	// ErrAllProvidersFailed signals that every provider in the fallback order was exhausted.
	ErrAllProvidersFailed = errors.New("all llm providers failed")
	// ErrInvalidJSONResponse signals generated text that does not parse as JSON.
	ErrInvalidJSONResponse = errors.New("llm response is not valid JSON")
	// ErrTimeout signals an attempt that exceeded its deadline.
	ErrTimeout = errors.New("llm attempt timed out")
	// ErrUpstream signals a vendor API failure.
	ErrUpstream = errors.New("llm upstream error")
)

// ErrorKind tags LLM failures so the orchestrator can decide between retrying and rotating.
type ErrorKind int

const (
	// KindUpstream is a vendor transport or API failure.
	KindUpstream ErrorKind = iota
	// KindProviderKeyMissing is a configuration failure; never retried.
	KindProviderKeyMissing
	// KindEmptyResponse is blank vendor output.
	KindEmptyResponse
	// KindTimeout is an attempt deadline hit.
	KindTimeout
	// KindRetryExhausted closes one provider's envelope.
	KindRetryExhausted
	// KindAllProvidersFailed closes the whole failover pass.
	KindAllProvidersFailed
	// KindInvalidJSON is a structured parse failure.
	KindInvalidJSON
	// KindInvalidInput is a caller error; never retried.
	KindInvalidInput
)

var kindSentinels = map[ErrorKind]error{
	KindUpstream:           ErrUpstream,
	KindProviderKeyMissing: ErrProviderKeyMissing,
	KindEmptyResponse:      ErrEmptyResponse,
	KindTimeout:            ErrTimeout,
	KindRetryExhausted:     ErrRetryExhausted,
	KindAllProvidersFailed: ErrAllProvidersFailed,
	KindInvalidJSON:        ErrInvalidJSONResponse,
	KindInvalidInput:       ErrInvalidInput,
}

// String returns the error code used in logs and API bodies.
func (k ErrorKind) String() string {
	switch k {
	case KindProviderKeyMissing:
		return "LLM_PROVIDER_MISSING"
	case KindEmptyResponse:
		return "LLM_EMPTY_RESPONSE"
	case KindTimeout:
		return "LLM_TIMEOUT"
	case KindRetryExhausted:
		return "LLM_RETRY_EXHAUSTED"
	case KindAllProvidersFailed:
		return "LLM_ALL_PROVIDERS_FAILED"
	case KindInvalidJSON:
		return "LLM_JSON_PARSE_ERROR"
	case KindInvalidInput:
		return "LLM_INVALID_INPUT"
	default:
		return "LLM_UPSTREAM_ERROR"
	}
}

// Retryable reports whether another attempt against the same provider can succeed.
func (k ErrorKind) Retryable() bool {
	return k != KindProviderKeyMissing && k != KindInvalidInput
}

// LLMError is the tagged error value returned across the provider stack.
type LLMError struct {
	Kind      ErrorKind
	Provider  string
	Operation Operation
	Attempts  int
	Err       error
}

func (e *LLMError) Error() string {
	var b strings.Builder
	b.WriteString(kindSentinels[e.Kind].Error())
	if e.Provider != "" {
		b.WriteString(" (provider=" + e.Provider + ")")
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *LLMError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's own kind, so errors.Is(err, ErrEmptyResponse) works.
func (e *LLMError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// NewLLMError creates a tagged error.
func NewLLMError(kind ErrorKind, provider string, op Operation, err error) *LLMError {
	return &LLMError{Kind: kind, Provider: provider, Operation: op, Err: err}
}

// KindOf extracts the outermost error kind. Untagged errors count as upstream failures.
func KindOf(err error) ErrorKind {
	var le *LLMError
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, ErrInvalidInput) {
		return KindInvalidInput
	}
	return KindUpstream
}
