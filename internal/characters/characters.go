// Package characters is the fixed, read-only character dataset.
package characters

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/xerrors"
)

//go:embed seed.yaml
var seed []byte

type Character struct {
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
}

type seedFile struct {
	Version    string      `yaml:"version"`
	Characters []Character `yaml:"characters"`
}

// Store serves lookups over the loaded characters. It is immutable after
// construction and safe for concurrent use.
type Store struct {
	chars   []Character
	version string
	hash    string
}

// Filter narrows Search. Empty fields match everything.
type Filter struct {
	FirstName string
	LastName  string
}

// Load parses the embedded seed.
func Load() (*Store, error) {
	return Parse(seed)
}

// Parse builds a Store from YAML seed data.
func Parse(data []byte) (*Store, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, xerrors.Wrap(err, "parse character seed")
	}
	if len(f.Characters) == 0 {
		return nil, xerrors.New("character seed is empty")
	}
	for i, c := range f.Characters {
		if c.FirstName == "" || c.LastName == "" {
			return nil, xerrors.Newf("character seed entry %d is missing a name", i+1)
		}
	}
	sum := sha256.Sum256(data)
	return &Store{
		chars:   f.Characters,
		version: f.Version,
		hash:    hex.EncodeToString(sum[:]),
	}, nil
}

// FindByID returns the character at the 1-based id.
func (s *Store) FindByID(id int) (Character, error) {
	if id < 1 || id > len(s.chars) {
		return Character{}, apierr.NotFound("Character", id)
	}
	return s.chars[id-1], nil
}

// Search returns characters whose names contain the filter values,
// case-insensitively. Both filters must match. The result is never nil.
func (s *Store) Search(f Filter) []Character {
	first := strings.ToLower(f.FirstName)
	last := strings.ToLower(f.LastName)

	out := make([]Character, 0, len(s.chars))
	for _, c := range s.chars {
		if first != "" && !strings.Contains(strings.ToLower(c.FirstName), first) {
			continue
		}
		if last != "" && !strings.Contains(strings.ToLower(c.LastName), last) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Store) Len() int { return len(s.chars) }

func (s *Store) DatasetVersion() string { return s.version }

// DatasetHash is the hex SHA-256 of the seed document.
func (s *Store) DatasetHash() string { return s.hash }

// Ready reports whether the store has data to serve.
func (s *Store) Ready() bool { return s != nil && len(s.chars) > 0 }
