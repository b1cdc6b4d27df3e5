package bagit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// A BagError reports fixity or completeness problems found while
// validating a bag. It is distinct from the ordinary errors returned for
// I/O trouble: a BagError means the bag itself is bad, not that the
// check could not be carried out.
type BagError struct {
	Problems []string
}

func (e *BagError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "bag is invalid"
	case 1:
		return e.Problems[0]
	}
	return fmt.Sprintf("%s (and %d more problems)", e.Problems[0], len(e.Problems)-1)
}

// IsBagError reports whether err is a validation failure as opposed to a
// system error.
func IsBagError(err error) bool {
	_, ok := errors.Cause(err).(*BagError)
	return ok
}

// Validate performs a full fixity validation of the bag: every digest in
// every manifest and tagmanifest on disk is recomputed and compared, and
// manifest coverage is checked in both directions (no payload file
// missing from a manifest, no manifest entry without a file). It returns
// nil when the bag is valid, a *BagError when it is not, and an ordinary
// error when the validation itself could not be completed.
func (b *Bag) Validate() error {
	var problems []string

	for _, name := range []string{"bagit.txt", "bag-info.txt"} {
		if _, err := os.Stat(filepath.Join(b.dir, name)); err != nil {
			if os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("missing %s", name))
				continue
			}
			return errors.Wrapf(err, "validate %s", b.dir)
		}
	}
	if fi, err := os.Stat(filepath.Join(b.dir, PayloadDir)); err != nil || !fi.IsDir() {
		problems = append(problems, "missing payload directory")
		return &BagError{Problems: problems}
	}

	mAlgs, err := b.ManifestAlgorithms()
	if err != nil {
		return err
	}
	if len(mAlgs) == 0 {
		problems = append(problems, "no payload manifest present")
	}
	tAlgs, err := b.TagManifestAlgorithms()
	if err != nil {
		return err
	}

	files, err := payloadFiles(b.dir)
	if err != nil {
		return err
	}
	ps, err := b.verifyManifests(mAlgs, manifestName, files)
	if err != nil {
		return err
	}
	problems = append(problems, ps...)

	tfiles, err := tagFiles(b.dir)
	if err != nil {
		return err
	}
	ps, err = b.verifyManifests(tAlgs, tagManifestName, tfiles)
	if err != nil {
		return err
	}
	problems = append(problems, ps...)

	if len(problems) > 0 {
		return &BagError{Problems: problems}
	}
	return nil
}

// verifyManifests checks the manifest files named by algs against the
// actual file list, comparing coverage both ways and recomputing every
// digest. The files are each read only once no matter how many
// algorithms are in play.
func (b *Bag) verifyManifests(algs []string, fname func(string) string, files []string) ([]string, error) {
	var problems []string

	var known []string
	for _, alg := range algs {
		if algorithms[alg] == nil {
			problems = append(problems, fmt.Sprintf("%s uses unknown algorithm", fname(alg)))
			continue
		}
		known = append(known, alg)
	}
	if len(known) == 0 {
		return problems, nil
	}

	computed, err := computeDigests(b.dir, files, known, b.parallelism)
	if err != nil {
		return nil, err
	}

	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f] = true
	}

	for _, alg := range known {
		entries, err := readManifestFile(filepath.Join(b.dir, fname(alg)), b.encoding)
		if err != nil {
			return nil, err
		}
		for name, want := range entries {
			if !onDisk[name] {
				problems = append(problems,
					fmt.Sprintf("%s lists %s which does not exist", fname(alg), name))
				continue
			}
			if got := computed[alg][name]; !strings.EqualFold(got, want) {
				problems = append(problems,
					fmt.Sprintf("%s digest mismatch for %s: manifest has %s, computed %s",
						alg, name, want, got))
			}
		}
		for _, name := range files {
			if _, ok := entries[name]; !ok {
				problems = append(problems,
					fmt.Sprintf("%s is not listed in %s", name, fname(alg)))
			}
		}
	}
	return problems, nil
}
