package experience

import "errors"

var (
	// ErrValidation marks a request the caller can fix (missing image,
	// missing product id). Maps to HTTP 400.
	ErrValidation = errors.New("experience: invalid request")
	// ErrUpstream marks a failure in a required external dependency.
	ErrUpstream = errors.New("experience: upstream failure")
	// ErrGenerationFailed means the generation backend reported a terminal
	// failed state for the job.
	ErrGenerationFailed = errors.New("experience: generation failed")
	// ErrGenerationTimeout means the generation job never reached a
	// terminal state within the polling bounds.
	ErrGenerationTimeout = errors.New("experience: generation timed out")
)
