// Package filestore persists overrides in a YAML, TOML or JSON document.
// Each override is a top-level key made of a prefix and the feature key, with
// the value "ON" or "OFF". Cleared overrides are removed from the document and
// every other key in it is left alone.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	override "github.com/goliatone/go-override"
	"go.uber.org/zap"
	yaml "go.yaml.in/yaml/v3"
)

// DefaultPrefix is prepended to feature keys in the document.
const DefaultPrefix = "Override_"

// Format is the document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat indicates a file extension or format that is not
// YAML, TOML or JSON.
var ErrUnsupportedFormat = errors.New("filestore: unsupported format, YAML, TOML or JSON only")

// FormatFromPath picks the format from the file extension. Files without an
// extension are read as YAML.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "", ".yml", ".yaml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix. An empty prefix stores bare keys.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithFormat forces a format regardless of the file extension.
func WithFormat(format Format) Option {
	return func(s *Store) {
		s.format = format
	}
}

// WithLogger sets the logger used by Watch.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is an override.Store backed by a single file. Writes replace the
// file atomically. A missing file reads as empty.
type Store struct {
	mu     sync.Mutex
	path   string
	format Format
	prefix string
	logger *zap.Logger
}

// New returns a Store for path. The file does not need to exist yet.
func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("filestore: path is required")
	}
	s := &Store{
		path:   filepath.Clean(path),
		prefix: DefaultPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.format == "" {
		format, err := FormatFromPath(s.path)
		if err != nil {
			return nil, err
		}
		s.format = format
	}
	switch s.format {
	case FormatYAML, FormatTOML, FormatJSON:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.format)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(ctx context.Context, key string) (override.OverrideState, error) {
	if err := ctx.Err(); err != nil {
		return override.Default, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return override.Default, err
	}
	return parseState(doc[s.prefix+key]), nil
}

// Save rewrites the document with only prefix+key changed. Other keys,
// including ones that do not hold an override, are kept as they were.
func (s *Store) Save(ctx context.Context, key string, state override.OverrideState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !state.Valid() {
		return override.ErrInvalidOverrideState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	name := s.prefix + key
	if state == override.Default {
		if _, ok := doc[name]; !ok {
			return nil
		}
		delete(doc, name)
	} else {
		doc[name] = state.String()
	}
	return s.write(doc)
}

// Keys returns the feature keys under the prefix that hold ON or OFF, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for name, value := range doc {
		key, ok := strings.CutPrefix(name, s.prefix)
		if !ok || key == "" || parseState(value) == override.Default {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// read decodes the whole document. A missing or empty file is an empty
// document.
func (s *Store) read() (map[string]any, error) {
	doc := make(map[string]any)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	switch s.format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: decode %s %s: %w", s.format, s.path, err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}

// parseState reads an override value. Strings go through
// ParseOverrideState, booleans map to ON and OFF, anything else is Default.
func parseState(value any) override.OverrideState {
	switch v := value.(type) {
	case string:
		return override.ParseOverrideState(v)
	case bool:
		if v {
			return override.Enabled
		}
		return override.Disabled
	default:
		return override.Default
	}
}

func (s *Store) write(doc map[string]any) error {
	var buf bytes.Buffer
	var err error
	switch s.format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case FormatTOML:
		err = toml.NewEncoder(&buf).Encode(doc)
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(doc)
		if closeErr := enc.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return fmt.Errorf("filestore: encode %s: %w", s.format, err)
	}
	return writeAtomic(s.path, buf.Bytes())
}

// writeAtomic writes to a temporary file in the same directory and renames
// it over path, so readers never see a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("filestore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("filestore: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("filestore: replace %s: %w", path, err)
	}
	return nil
}
