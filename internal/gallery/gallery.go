// Package gallery holds the enrolled identities and their embeddings.
//
// A Gallery is an immutable snapshot of two parallel sequences: identities[i]
// belongs to embeddings[i]. Snapshots are published through a Store by
// atomic pointer swap, so a reader that took a snapshot keeps a consistent
// view while a rebuild publishes the next one.
package gallery

import (
	"errors"
	"time"
)

// ErrEmptyGallery is returned when there are no enrolled identities to match against.
var ErrEmptyGallery = errors.New("no identities enrolled")

// Entry pairs an identity with one of its embeddings.
type Entry struct {
	Identity  string    `json:"identity"`
	Embedding []float32 `json:"embedding"`
}

// Gallery is an immutable snapshot of enrolled embeddings.
// Several entries may share an identity.
type Gallery struct {
	identities  []string
	embeddings  [][]float32
	version     uint64
	builtAt     time.Time
	fingerprint string
}

// New creates a Gallery from entries. The entries are copied.
func New(entries []Entry) *Gallery {
	g := &Gallery{
		identities: make([]string, len(entries)),
		embeddings: make([][]float32, len(entries)),
		builtAt:    time.Now(),
	}
	for i, e := range entries {
		g.identities[i] = e.Identity
		emb := make([]float32, len(e.Embedding))
		copy(emb, e.Embedding)
		g.embeddings[i] = emb
	}
	return g
}

// Empty returns a Gallery with no entries.
func Empty() *Gallery {
	return New(nil)
}

// Len returns the number of entries.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.identities)
}

// Identity returns the identity at position i.
func (g *Gallery) Identity(i int) string {
	return g.identities[i]
}

// Embedding returns the embedding at position i. The returned slice is
// shared with the snapshot and must not be modified.
func (g *Gallery) Embedding(i int) []float32 {
	return g.embeddings[i]
}

// Entries returns a copy of the gallery contents in positional order.
func (g *Gallery) Entries() []Entry {
	out := make([]Entry, g.Len())
	for i := range out {
		emb := make([]float32, len(g.embeddings[i]))
		copy(emb, g.embeddings[i])
		out[i] = Entry{Identity: g.identities[i], Embedding: emb}
	}
	return out
}

// Identities returns the distinct identities in first-seen order.
func (g *Gallery) Identities() []string {
	seen := make(map[string]bool, g.Len())
	var out []string
	for i := 0; i < g.Len(); i++ {
		id := g.identities[i]
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Version is assigned when the snapshot is published to a Store; zero
// means it has never been published.
func (g *Gallery) Version() uint64 {
	if g == nil {
		return 0
	}
	return g.version
}

// BuiltAt returns when the snapshot was built.
func (g *Gallery) BuiltAt() time.Time {
	return g.builtAt
}

// Fingerprint identifies the enrollment image set the snapshot was built from.
func (g *Gallery) Fingerprint() string {
	return g.fingerprint
}
