package util

import (
	"hash"
	"io"
	"sort"
)

// A HashWriter wraps an io.Writer and computes a set of named digests of
// the bytes written. The set of hashes is fixed at creation. Names are
// whatever the caller chooses; this package attaches no meaning to them.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[string]hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w. Every write to the
// returned writer is passed through to w and to each hash in hashes.
func NewHashWriter(w io.Writer, hashes map[string]hash.Hash) *HashWriter {
	hw := &HashWriter{hashes: hashes}
	ws := make([]io.Writer, 0, len(hashes)+1)
	if w != nil {
		ws = append(ws, w)
	}
	// add the hashes in sorted name order so writes are deterministic
	for _, name := range sortedNames(hashes) {
		ws = append(ws, hashes[name])
	}
	hw.Writer = io.MultiWriter(ws...)
	return hw
}

// NewHashWriterPlain returns a HashWriter that does not wrap an output
// stream. It will just compute the digests of the data written to it.
func NewHashWriterPlain(hashes map[string]hash.Hash) *HashWriter {
	return NewHashWriter(nil, hashes)
}

// Sum returns the digest named name for everything written so far, or nil
// if no hash with that name was given at creation.
func (hw *HashWriter) Sum(name string) []byte {
	h := hw.hashes[name]
	if h == nil {
		return nil
	}
	return h.Sum(nil)
}

// Sums returns every digest computed by this writer, keyed by name.
func (hw *HashWriter) Sums() map[string][]byte {
	result := make(map[string][]byte, len(hw.hashes))
	for name, h := range hw.hashes {
		result[name] = h.Sum(nil)
	}
	return result
}

func sortedNames(hashes map[string]hash.Hash) []string {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
