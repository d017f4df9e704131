package benchmark

import "errors"

var (
	// ErrModelNotFound means the weights file for a model is missing. Nothing is persisted.
	ErrModelNotFound = errors.New("model not found")
	// ErrDatasetMissing means the dataset file does not exist.
	ErrDatasetMissing = errors.New("dataset missing")
	// ErrDatasetMalformed means the dataset file is not an array of examples.
	ErrDatasetMalformed = errors.New("dataset malformed")
	// ErrQueueExhausted is returned by RunNext when every queued item is persisted.
	ErrQueueExhausted = errors.New("work queue exhausted")
	// ErrRunInProgress is returned when a run is requested while another one is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrInvalidItem means the item size is not positive or names an unknown dataset.
	ErrInvalidItem = errors.New("invalid work item")
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
)

// IsModelNotFound reports whether err is or wraps ErrModelNotFound.
func IsModelNotFound(err error) bool { return errors.Is(err, ErrModelNotFound) }

// IsDatasetError reports whether err is a missing or malformed dataset.
func IsDatasetError(err error) bool {
	return errors.Is(err, ErrDatasetMissing) || errors.Is(err, ErrDatasetMalformed)
}
