package benchmark

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// StoreFileName is the results file inside the data directory.
const StoreFileName = "bench_results.json"

// document is the on-disk layout of the store.
type document struct {
	Tests []RunRecord `json:"tests"`
}

// Store persists RunRecords as one JSON document. Every write replaces the
// whole file through a temporary file and a rename.
type Store struct {
	path string
	mu   sync.Mutex
	// OnCorrupt, if set, is told about a store file that could not be decoded.
	OnCorrupt func(path string, err error)
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// StorePath returns the store file under dataDir.
func StorePath(dataDir string) string {
	return filepath.Join(dataDir, StoreFileName)
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load returns every persisted record in insertion order. A missing file is an
// empty store. A file that fails validation or decoding is reported through
// OnCorrupt, copied aside with a ".corrupt" suffix, and read as empty.
func (s *Store) Load() ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]RunRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []RunRecord{}, nil
		}
		return nil, fmt.Errorf("read store %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []RunRecord{}, nil
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		s.corrupt(raw, err)
		return []RunRecord{}, nil
	}
	return doc.Tests, nil
}

func decodeDocument(raw []byte) (document, error) {
	if err := validate(storeSchemaLoader, raw); err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, err
	}
	if doc.Tests == nil {
		doc.Tests = []RunRecord{}
	}
	return doc, nil
}

func (s *Store) corrupt(raw []byte, err error) {
	_ = os.WriteFile(s.path+".corrupt", raw, 0o644)
	if s.OnCorrupt != nil {
		s.OnCorrupt(s.path, err)
	}
}

// Save replaces the store contents with runs.
func (s *Store) Save(runs []RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(runs)
}

func (s *Store) save(runs []RunRecord) error {
	if runs == nil {
		runs = []RunRecord{}
	}
	data, err := encodeDocument(document{Tests: runs})
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Append adds rec to the end of the store.
func (s *Store) Append(rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.load()
	if err != nil {
		return err
	}
	return s.save(append(runs, rec))
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (RunRecord, error) {
	runs, err := s.Load()
	if err != nil {
		return RunRecord{}, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// Delete removes the record with the given ID. Removing the record makes its
// item pending again.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs, err := s.load()
	if err != nil {
		return err
	}
	kept := runs[:0]
	found := false
	for _, r := range runs {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return s.save(kept)
}

// encodeDocument writes doc with lexically sorted keys and a two-space indent.
// Struct fields keep declaration order when marshalled, so the document makes
// one round trip through generic maps, which the encoder emits sorted.
func encodeDocument(doc document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp store file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
