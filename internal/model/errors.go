package model

import "github.com/rotisserie/eris"

// Error taxonomy shared across the routing and trust layers. Callers match
// with eris.Is; producers wrap these with context.
var (
	// ErrModelTimeout marks a single model attempt that exceeded its deadline.
	ErrModelTimeout = eris.New("model timeout")
	// ErrModelUnavailable means every model in a plan failed.
	ErrModelUnavailable = eris.New("model unavailable")
	// ErrMalformedClaim means numeric or logical structure could not be parsed.
	ErrMalformedClaim = eris.New("malformed claim")
	// ErrConfigurationDrift means policy bands or tables have gaps.
	ErrConfigurationDrift = eris.New("configuration drift")
	// ErrInvalidInput means a required field was missing or malformed.
	ErrInvalidInput = eris.New("invalid input")
)
