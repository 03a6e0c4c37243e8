package domain

import "errors"

var (
	// ErrQuotaExceeded is returned when the caller has no usage units left this period
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrPersistence marks quota storage failures unrelated to quota logic
	ErrPersistence = errors.New("quota storage failed")
	// ErrUpstreamFetch marks failures of the comment source
	ErrUpstreamFetch = errors.New("comment fetch failed")
	// ErrUpstreamGeneration marks failures of the generation service call
	ErrUpstreamGeneration = errors.New("generation service failed")
	// ErrMalformedOutput is returned when no repair could make the model output parseable
	ErrMalformedOutput = errors.New("malformed model output")
)
