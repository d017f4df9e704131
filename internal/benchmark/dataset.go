package benchmark

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mwiater/edgebench/internal/catalog"
)

// DatasetExtension is appended to a dataset ID to find its file.
const DatasetExtension = ".json"

// Example is one dataset element.
type Example struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Context  string `json:"context,omitempty"`
}

// Usable reports whether the example carries both a question and an answer.
func (e Example) Usable() bool {
	return strings.TrimSpace(e.Question) != "" && strings.TrimSpace(e.Answer) != ""
}

// DatasetPath returns the expected file for d under dir.
func DatasetPath(dir string, d catalog.DatasetDescriptor) string {
	return filepath.Join(dir, d.ID+DatasetExtension)
}

// LoadDataset reads and validates the dataset file for d.
func LoadDataset(dir string, d catalog.DatasetDescriptor) ([]Example, error) {
	path := DatasetPath(dir, d)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDatasetMissing, path, err)
	}
	if err := validate(datasetSchemaLoader, raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDatasetMalformed, path, err)
	}
	var examples []Example
	if err := json.Unmarshal(raw, &examples); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDatasetMalformed, path, err)
	}
	return examples, nil
}
