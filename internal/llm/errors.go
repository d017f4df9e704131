package llm

import "errors"

var (
	// ErrModelLoadFailed means the weights could not be turned into a runtime.
	ErrModelLoadFailed = errors.New("model load failed")
	// ErrContextOverflow means the prompt cannot fit while leaving room to generate.
	ErrContextOverflow = errors.New("context overflow")
	// ErrDecodeFailed means the runtime rejected a decode submission.
	ErrDecodeFailed = errors.New("decode failed")
	// ErrSessionNotReset is returned by Prefill on a session that already ran a prompt.
	ErrSessionNotReset = errors.New("session must be reset before the next prompt")
	// ErrSessionClosed is returned by any call after Close.
	ErrSessionClosed = errors.New("session closed")
)

// IsModelLoadFailed reports whether err wraps ErrModelLoadFailed.
func IsModelLoadFailed(err error) bool { return errors.Is(err, ErrModelLoadFailed) }

// IsContextOverflow reports whether err wraps ErrContextOverflow.
func IsContextOverflow(err error) bool { return errors.Is(err, ErrContextOverflow) }

// IsDecodeFailed reports whether err wraps ErrDecodeFailed.
func IsDecodeFailed(err error) bool { return errors.Is(err, ErrDecodeFailed) }
