package kira

import "github.com/kira-labs/kira/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput        = domain.ErrInvalidInput
	ErrProviderKeyMissing  = domain.ErrProviderKeyMissing
	ErrEmptyResponse       = domain.ErrEmptyResponse
	ErrRetryExhausted      = domain.ErrRetryExhausted
	ErrAllProvidersFailed  = domain.ErrAllProvidersFailed
	ErrInvalidJSONResponse = domain.ErrInvalidJSONResponse
	ErrTimeout             = domain.ErrTimeout
	ErrUpstream            = domain.ErrUpstream
	ErrVectorDimMismatch   = domain.ErrVectorDimMismatch
)
