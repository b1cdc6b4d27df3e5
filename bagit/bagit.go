// Package bagit implements enough of the BagIt packaging convention to
// create, save, and validate the bags produced by the bag builder. Bags
// are plain directories on disk: a data/ payload directory next to
// bagit.txt, bag-info.txt, one manifest file per checksum algorithm, and
// one tagmanifest file per tag checksum algorithm.
//
// Specific items not implemented are fetch files and holey bags. Unlike
// some implementations, this package does preserve the order of the tags
// in the bag-info.txt file and multiple occurrences of a tag.
//
// Checksums are generated for each payload file when a bag is created.
// After that, checksums are only calculated when a bag is (explicitly)
// validated.
//
// The BagIt spec can be found at https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	// Version is the version of the BagIt specification this package
	// implements and declares in bagit.txt.
	Version = "1.0"

	// PayloadDir is the name of the payload directory inside a bag.
	PayloadDir = "data"
)

// The digest algorithms we know how to compute. The names are the ones
// used in manifest file names, e.g. manifest-sha256.txt.
var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// DefaultAlgorithms returns the algorithm set used when a caller does not
// choose one. The slice is a fresh copy every call.
func DefaultAlgorithms() []string {
	return []string{"md5", "sha1", "sha256", "sha512"}
}

// Hashes returns a new, zeroed hash.Hash for each named algorithm. An
// unknown name is an error.
func Hashes(algs []string) (map[string]hash.Hash, error) {
	result := make(map[string]hash.Hash, len(algs))
	for _, name := range algs {
		mk := algorithms[name]
		if mk == nil {
			return nil, errors.Errorf("unknown checksum algorithm %q", name)
		}
		result[name] = mk()
	}
	return result, nil
}

// A ChecksumSet names the digest algorithms to keep for the payload
// manifests and for the tagmanifests. The two sets may differ; the union
// is what is actually computed during a build pass. A ChecksumSet is
// value-immutable once constructed: build one per builder and pass it
// around rather than sharing a mutable process-wide default.
type ChecksumSet struct {
	Manifest    []string
	TagManifest []string
}

// NewChecksumSet normalizes and validates the two algorithm lists. A nil
// or empty list defaults to DefaultAlgorithms. Names are lower-cased and
// deduplicated, preserving first appearance order. Unknown algorithm
// names are an error.
func NewChecksumSet(manifest, tagmanifest []string) (ChecksumSet, error) {
	m, err := normalizeAlgorithms(manifest)
	if err != nil {
		return ChecksumSet{}, err
	}
	t, err := normalizeAlgorithms(tagmanifest)
	if err != nil {
		return ChecksumSet{}, err
	}
	return ChecksumSet{Manifest: m, TagManifest: t}, nil
}

// Union returns the sorted union of the manifest and tagmanifest
// algorithm sets.
func (cs ChecksumSet) Union() []string {
	seen := make(map[string]bool)
	var union []string
	for _, name := range append(append([]string{}, cs.Manifest...), cs.TagManifest...) {
		if !seen[name] {
			seen[name] = true
			union = append(union, name)
		}
	}
	sort.Strings(union)
	return union
}

func normalizeAlgorithms(algs []string) ([]string, error) {
	if len(algs) == 0 {
		return DefaultAlgorithms(), nil
	}
	seen := make(map[string]bool)
	var result []string
	for _, name := range algs {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		if algorithms[name] == nil {
			return nil, errors.Errorf("unknown checksum algorithm %q", name)
		}
		seen[name] = true
		result = append(result, name)
	}
	if len(result) == 0 {
		return DefaultAlgorithms(), nil
	}
	return result, nil
}
