// Package envstore reads overrides from environment variables. It is meant as
// the strongest layer of an override.LayeredStore, so deployments can pin a
// feature without touching the persisted overrides.
package envstore

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"unicode"

	override "github.com/goliatone/go-override"
)

// DefaultPrefix is prepended to the normalised feature key.
const DefaultPrefix = "OVERRIDE_"

// ErrReadOnly is returned by Save.
var ErrReadOnly = errors.New("envstore: environment overrides are read-only")

// Option configures a Store.
type Option func(*Store)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithEnviron replaces os.Environ and os.LookupEnv with a fixed set of
// KEY=value pairs.
func WithEnviron(environ []string) Option {
	return func(s *Store) {
		vars := make(map[string]string, len(environ))
		for _, kv := range environ {
			if name, value, ok := strings.Cut(kv, "="); ok {
				vars[name] = value
			}
		}
		s.environ = func() []string { return append([]string(nil), environ...) }
		s.lookup = func(name string) (string, bool) {
			value, ok := vars[name]
			return value, ok
		}
	}
}

// Store is a read-only override.Store over environment variables.
type Store struct {
	prefix  string
	environ func() []string
	lookup  func(string) (string, bool)
}

// New returns a Store reading the process environment.
func New(opts ...Option) *Store {
	s := &Store{
		prefix:  DefaultPrefix,
		environ: os.Environ,
		lookup:  os.LookupEnv,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// VariableName returns the variable consulted for key: the prefix followed
// by the key upper-cased, with anything other than letters and digits
// replaced by underscores. "darkMode" and "checkout.coupons" map to
// OVERRIDE_DARKMODE and OVERRIDE_CHECKOUT_COUPONS.
func (s *Store) VariableName(key string) string {
	return s.prefix + Normalize(key)
}

// Normalize maps a feature key to its variable suffix: letters and digits
// upper-cased, everything else replaced with '_'. Keys returns normalised
// suffixes, so "darkMode" and "DARKMODE" name the same variable.
func Normalize(key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, key)
}

func (s *Store) Load(ctx context.Context, key string) (override.OverrideState, error) {
	if err := ctx.Err(); err != nil {
		return override.Default, err
	}
	value, ok := s.lookup(s.VariableName(key))
	if !ok {
		return override.Default, nil
	}
	return override.ParseOverrideState(value), nil
}

// Save always fails with ErrReadOnly.
func (s *Store) Save(context.Context, string, override.OverrideState) error {
	return ErrReadOnly
}

// ReadOnly lets override.NewStoreLayer mark the layer read-only.
func (s *Store) ReadOnly() bool {
	return true
}

// Keys returns the normalised names, without prefix, of variables holding an
// ON or OFF value. Original key casing cannot be recovered.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	for _, kv := range s.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		key, found := strings.CutPrefix(name, s.prefix)
		if !found || key == "" {
			continue
		}
		if override.ParseOverrideState(value) != override.Default {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
