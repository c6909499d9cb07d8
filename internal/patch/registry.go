// Package patch holds the signature table and the two primitive operations
// the engine is built on: finding every occurrence of a signature in a
// buffer and overwriting a bounded range in place.
package patch

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrEmptySignature   = errors.New("signature is empty")
	ErrEmptyID          = errors.New("pattern id is empty")
	ErrDuplicateID      = errors.New("duplicate pattern id")
	ErrNoopReplacement  = errors.New("replacement equals signature")
	ErrReintroducedSite = errors.New("replacement contains a registered signature")
)

// PatternSpec describes one patch: every occurrence of Signature is
// overwritten with Replacement.
type PatternSpec struct {
	ID          string
	Signature   []byte
	Replacement []byte
	Description string
}

// LengthMismatchError is returned when a replacement would shift the bytes
// following a patch site.
type LengthMismatchError struct {
	ID          string
	Signature   int
	Replacement int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("pattern %q: replacement is %d bytes, signature is %d", e.ID, e.Replacement, e.Signature)
}

// Registry is an immutable, ordered set of patterns.
type Registry struct {
	entries []PatternSpec
}

// NewRegistry validates specs and freezes them in the given order.
func NewRegistry(specs ...PatternSpec) (*Registry, error) {
	seen := make(map[string]struct{}, len(specs))
	entries := make([]PatternSpec, 0, len(specs))

	for _, s := range specs {
		if s.ID == "" {
			return nil, ErrEmptyID
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = struct{}{}

		if len(s.Signature) == 0 {
			return nil, fmt.Errorf("pattern %q: %w", s.ID, ErrEmptySignature)
		}
		if len(s.Signature) != len(s.Replacement) {
			return nil, &LengthMismatchError{ID: s.ID, Signature: len(s.Signature), Replacement: len(s.Replacement)}
		}
		if bytes.Equal(s.Signature, s.Replacement) {
			return nil, fmt.Errorf("pattern %q: %w", s.ID, ErrNoopReplacement)
		}
		entries = append(entries, clone(s))
	}

	// A replacement that still carries a signature would be matched again at
	// the same site on the next run. Sites formed across a replacement's edges
	// with the neighbouring bytes are not ruled out, so whether a second run
	// finds nothing depends on the table.
	for _, e := range entries {
		for _, other := range entries {
			if bytes.Contains(e.Replacement, other.Signature) {
				return nil, fmt.Errorf("pattern %q: %w (%q)", e.ID, ErrReintroducedSite, other.ID)
			}
		}
	}

	return &Registry{entries: entries}, nil
}

// MustRegistry is like NewRegistry but panics on an invalid table. It is
// meant for tables compiled into the binary.
func MustRegistry(specs ...PatternSpec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entries returns a copy of the table in insertion order.
func (r *Registry) Entries() []PatternSpec {
	if r == nil {
		return nil
	}
	out := make([]PatternSpec, len(r.entries))
	for i, e := range r.entries {
		out[i] = clone(e)
	}
	return out
}

// Len returns the number of patterns.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Lookup returns the pattern with the given id.
func (r *Registry) Lookup(id string) (PatternSpec, bool) {
	if r == nil {
		return PatternSpec{}, false
	}
	for _, e := range r.entries {
		if e.ID == id {
			return clone(e), true
		}
	}
	return PatternSpec{}, false
}

func clone(s PatternSpec) PatternSpec {
	s.Signature = bytes.Clone(s.Signature)
	s.Replacement = bytes.Clone(s.Replacement)
	return s
}

// DefaultPatterns is the built-in x86 table: conditional branches that are
// rewritten into their unconditional form.
func DefaultPatterns() []PatternSpec {
	return []PatternSpec{
		{
			ID:          "test-jz-near",
			Signature:   []byte{0x84, 0xC0, 0x0F, 0x84}, // test al, al; jz rel32
			Replacement: []byte{0x84, 0xC0, 0x90, 0xE9}, // test al, al; nop; jmp rel32
			Description: "Force near jz after test al,al to an unconditional jmp",
		},
		{
			ID:          "jz-short-call",
			Signature:   []byte{0x74, 0x05, 0xE8}, // jz +5; call
			Replacement: []byte{0xEB, 0x05, 0xE8}, // jmp +5; call
			Description: "Force short jz over a call to an unconditional jmp",
		},
	}
}

// DefaultRegistry returns the built-in table.
func DefaultRegistry() *Registry {
	return MustRegistry(DefaultPatterns()...)
}
