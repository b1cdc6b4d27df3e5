// Package builder packages an intellectual entity — a directory holding a
// data/ payload and optionally a meta/ sidecar directory — into a BagIt
// bag. The entire build happens in a staging directory next to the final
// location; the finished, validated bag is moved into place with a single
// same-volume rename, so a partially built or invalid bag is never left
// where the caller expects a valid one.
package builder

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/archivelib/bagbuilder/bagit"
	"github.com/archivelib/bagbuilder/fileutil"
	"github.com/archivelib/bagbuilder/util"
)

// origin tag for log entries
const builderTag = "bag-builder"

// how many staging directory names to try before giving up
const maxStagingAttempts = 10

// A Builder creates bags. The manifest and tagmanifest algorithm sets are
// fixed at construction, as is their union, which is the set actually
// computed during a build. Builders keep a Log the caller can inspect
// after each call; one Builder should not run concurrent builds.
type Builder struct {
	checksums bagit.ChecksumSet
	union     []string

	// Log records what happened during builds. Never nil.
	Log *Log
}

// New returns a Builder using the given algorithm lists for the manifest
// and tagmanifest files. A nil or empty list means the default algorithm
// set. Unknown algorithm names are an error.
func New(manifestAlgs, tagmanifestAlgs []string) (*Builder, error) {
	cs, err := bagit.NewChecksumSet(manifestAlgs, tagmanifestAlgs)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		checksums: cs,
		union:     cs.Union(),
		Log:       NewLog(builderTag),
	}
	b.Log.Infof("using algorithms %v for manifest generation", cs.Manifest)
	b.Log.Infof("using algorithms %v for tag-manifest generation", cs.TagManifest)
	return b, nil
}

// ChecksumSet returns the algorithm configuration this Builder was
// constructed with.
func (b *Builder) ChecksumSet() bagit.ChecksumSet { return b.checksums }

// Options for one BuildBag call.
type Options struct {
	// Source is the intellectual entity directory: it must contain a
	// data directory and may contain a meta directory, nothing else.
	Source string

	// Info holds the caller's bag-info.txt fields. The generated
	// Bagging-DateTime and Payload-Oxum fields always win over caller
	// values; a caller-supplied Bagging-Date is deleted.
	Info *bagit.TagMap

	// Dest, when set, is where the finished bag is placed. When empty
	// the bag replaces Source in place.
	Dest string

	// ExistOK allows Dest to already exist; it will be replaced by the
	// finished bag. The pre-creation of a missing Dest is caller-owned
	// and is not undone on later failure.
	ExistOK bool

	// Parallelism bounds concurrent per-file digest computation.
	// Zero or less means sequential.
	Parallelism int

	// Encoding is the text encoding for tag and manifest files.
	// Empty means UTF-8.
	Encoding string
}

// BuildBag packages the intellectual entity at opts.Source into a bag.
//
// The build is staged in a sibling directory and only moved to the final
// location after passing a full fixity validation, so every failure
// before the move leaves the source (and any existing destination)
// untouched. A validation failure after the move — which indicates a bug
// or a filesystem race, never an expected input — leaves the moved bag in
// place for inspection and is reported as a ValidationError with phase
// "final".
//
// On failure the returned bag is nil; the Builder's Log holds at least
// one error entry describing which step failed.
func (b *Builder) BuildBag(opts Options) (*bagit.Bag, error) {
	b.Log.Infof("making bag from %q", opts.Source)
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Encoding == "" {
		opts.Encoding = "utf-8"
	}

	if err := b.validateIE(opts.Source); err != nil {
		return nil, err
	}
	if err := b.prepareDest(opts.Dest, opts.ExistOK); err != nil {
		return nil, err
	}

	final := opts.Source
	if opts.Dest != "" {
		final = opts.Dest
	}

	staging, err := b.allocateStaging(filepath.Dir(final))
	if err != nil {
		return nil, err
	}
	// Any failure between here and the rename must tear staging down.
	fail := func(err error) (*bagit.Bag, error) {
		b.Log.Errorf("%s", err)
		if rerr := fileutil.RemoveTree(staging); rerr != nil {
			b.Log.Warningf("cleaning staging directory: %s", rerr)
		}
		return nil, err
	}

	if err := fileutil.CopyTree(opts.Source, staging); err != nil {
		return fail(err)
	}

	bagdir := filepath.Join(staging, "data")
	bag, err := bagit.MakeBag(bagdir, bagit.Options{
		Info:        opts.Info.Copy(),
		Algorithms:  b.union,
		Parallelism: opts.Parallelism,
		Encoding:    opts.Encoding,
	})
	if err != nil {
		return fail(err)
	}

	// Bagging-DateTime supersedes the plain Bagging-Date, whether ours
	// or the caller's.
	bag.Info().Delete("Bagging-Date")
	bag.Info().Set("Bagging-DateTime", bagit.BaggingDateTime(time.Now()))
	if err := bag.Save(false); err != nil {
		return fail(err)
	}

	if err := b.relocateMeta(staging, bag); err != nil {
		return fail(err)
	}

	if err := bag.Validate(); err != nil {
		if bagit.IsBagError(err) {
			err = &ValidationError{Phase: "initial", Err: err}
		}
		return fail(err)
	}

	if octets, count, err := bagit.ParseOxum(bag.Info().Value("Payload-Oxum")); err == nil {
		b.Log.Infof("payload is %s in %d files", util.HumanSize(octets), count)
	}

	if err := b.relocate(staging, bagdir, opts, final); err != nil {
		// relocate already removed staging as far as it could
		return nil, err
	}

	bag, err = b.finalize(final, opts.Parallelism)
	if err != nil {
		return nil, err
	}

	b.Log.Infof("successfully created bag at %q", final)
	return bag, nil
}

// validateIE checks that src has a data directory and nothing at its root
// besides data and meta.
func (b *Builder) validateIE(src string) error {
	fi, err := os.Stat(filepath.Join(src, "data"))
	if err != nil || !fi.IsDir() {
		serr := &InvalidStructureError{Reason: "missing data directory"}
		b.Log.Errorf("source %q: %s", src, serr)
		return serr
	}
	bad, err := fileutil.ListDirectory(src, func(name string) bool {
		return name != "data" && name != "meta"
	})
	if err != nil {
		b.Log.Errorf("%s", err)
		return err
	}
	if len(bad) > 0 {
		for i, name := range bad {
			bad[i] = filepath.Join(src, name)
		}
		serr := &InvalidStructureError{Reason: "unexpected root entries", Paths: bad}
		b.Log.Errorf("source %q: %s", src, serr)
		return serr
	}
	return nil
}

// prepareDest enforces the destination contract: an existing destination
// is an error unless ExistOK, and a missing one is created up front. The
// creation is caller-owned and survives later failures.
func (b *Builder) prepareDest(dest string, existOK bool) error {
	if dest == "" {
		return nil
	}
	_, err := os.Stat(dest)
	switch {
	case err == nil:
		if !existOK {
			derr := &DestinationExistsError{Path: dest}
			b.Log.Errorf("%s", derr)
			return derr
		}
		return nil
	case os.IsNotExist(err):
		if merr := os.Mkdir(dest, 0755); merr != nil {
			merr = errors.Wrapf(merr, "create destination %s", dest)
			b.Log.Errorf("%s", merr)
			return merr
		}
		return nil
	default:
		err = errors.Wrapf(err, "stat destination %s", dest)
		b.Log.Errorf("%s", err)
		return err
	}
}

// allocateStaging creates a fresh randomly named staging directory in
// parent, retrying on name collision up to maxStagingAttempts times.
func (b *Builder) allocateStaging(parent string) (string, error) {
	for i := 0; i < maxStagingAttempts; i++ {
		path := filepath.Join(parent, fileutil.StagingPrefix+uuid.New().String())
		err := os.Mkdir(path, 0755)
		if err == nil {
			return path, nil
		}
		if !os.IsExist(err) {
			err = errors.Wrapf(err, "create staging %s", path)
			b.Log.Errorf("%s", err)
			return "", err
		}
	}
	serr := &StagingAllocationError{Parent: parent, Attempts: maxStagingAttempts}
	b.Log.Errorf("%s", serr)
	return "", serr
}

// relocateMeta moves the staged meta directory, if there is one, into the
// bag payload at data/meta, then regenerates the manifests so both the
// manifest entries and the Payload-Oxum cover the relocated files.
func (b *Builder) relocateMeta(staging string, bag *bagit.Bag) error {
	metaSrc := filepath.Join(staging, "meta")
	fi, err := os.Stat(metaSrc)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "stat %s", metaSrc)
	}
	if !fi.IsDir() {
		return errors.Errorf("%s: not a directory", metaSrc)
	}
	dst := filepath.Join(bag.Dir(), bagit.PayloadDir, "meta")
	if err := fileutil.Rename(metaSrc, dst); err != nil {
		return err
	}
	b.Log.Infof("relocated sidecar metadata into payload")
	return bag.Save(true)
}

// relocate performs the atomic handoff: vacate the final location, rename
// the staged bag into it, and remove the now-empty staging shell.
func (b *Builder) relocate(staging, bagdir string, opts Options, final string) error {
	var err error
	if opts.Dest == "" {
		err = fileutil.RemoveTree(opts.Source)
	} else {
		err = fileutil.RemoveTree(opts.Dest)
	}
	if err != nil {
		b.Log.Errorf("%s", err)
		if rerr := fileutil.RemoveTree(staging); rerr != nil {
			b.Log.Warningf("cleaning staging directory: %s", rerr)
		}
		return err
	}
	if err := fileutil.Rename(bagdir, final); err != nil {
		b.Log.Errorf("%s", err)
		if rerr := fileutil.RemoveTree(staging); rerr != nil {
			b.Log.Warningf("cleaning staging directory: %s", rerr)
		}
		return err
	}
	if err := os.Remove(staging); err != nil {
		b.Log.Warningf("removing staging shell: %s", err)
	}
	return nil
}

// finalize prunes the manifest files computed for the union but not
// requested, regenerates the tagmanifests against what remains, prunes
// those the same way, and runs the second full validation.
func (b *Builder) finalize(final string, parallelism int) (*bagit.Bag, error) {
	bag, err := bagit.Open(final)
	if err != nil {
		b.Log.Errorf("%s", err)
		return nil, err
	}
	bag.SetParallelism(parallelism)
	if err := bag.SetAlgorithms(b.union); err != nil {
		b.Log.Errorf("%s", err)
		return nil, err
	}

	for _, alg := range diff(b.union, b.checksums.Manifest) {
		if err := bag.RemoveManifest(alg); err != nil {
			b.Log.Errorf("%s", err)
			return nil, err
		}
	}
	// regenerate the tagmanifests without touching the payload
	// manifests, then prune those not requested
	if err := bag.Save(false); err != nil {
		b.Log.Errorf("%s", err)
		return nil, err
	}
	for _, alg := range diff(b.union, b.checksums.TagManifest) {
		if err := bag.RemoveTagManifest(alg); err != nil {
			b.Log.Errorf("%s", err)
			return nil, err
		}
	}

	if err := bag.Validate(); err != nil {
		if bagit.IsBagError(err) {
			err = &ValidationError{Phase: "final", Err: err}
		}
		// no rollback: the moved directory stays for inspection
		b.Log.Errorf("bag left at %q is not valid: %s", final, err)
		return nil, err
	}
	return bag, nil
}

// diff returns the members of a not present in b.
func diff(a, b []string) []string {
	var result []string
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			result = append(result, x)
		}
	}
	return result
}
