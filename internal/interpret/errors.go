package interpret

import "errors"

var (
	// ErrConfigMismatch means the model artifact's output disagrees with the
	// static class map. Interpretation must stop.
	ErrConfigMismatch = errors.New("configuration mismatch")

	// ErrInvalidInput means the feature vector cannot be interpreted.
	ErrInvalidInput = errors.New("invalid input")
)
