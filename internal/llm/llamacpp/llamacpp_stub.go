//go:build !llama

// Package llamacpp binds the llama.cpp C API as an llm.Runtime.
//
// This file is compiled when the 'llama' build tag is NOT set, keeping default
// builds CGO-free. NewLoader fails fast so a benchmark never starts against a
// backend that cannot run.
package llamacpp

import (
	"errors"

	"github.com/mwiater/edgebench/internal/llm"
)

// Built reports whether this binary links llama.cpp.
const Built = false

// ErrNotBuilt is returned when the binary was built without the 'llama' tag.
var ErrNotBuilt = errors.New("llama support not built (missing 'llama' build tag)")

// Loader is a placeholder that refuses to load anything.
type Loader struct{}

// NewLoader always fails in this build.
func NewLoader() (Loader, error) {
	return Loader{}, ErrNotBuilt
}

// Load implements llm.Loader.
func (Loader) Load(string, llm.Params) (llm.Runtime, error) {
	return nil, ErrNotBuilt
}
