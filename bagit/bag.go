package bagit

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// A Bag is a handle on a bag directory. The zero value is not usable;
// bags come from MakeBag or Open.
type Bag struct {
	dir         string
	encoding    string
	parallelism int
	algorithms  []string // algorithms used when (re)generating manifests
	info        *TagMap  // contents of bag-info.txt
}

// Options control bag creation.
type Options struct {
	// Info holds the initial bag-info.txt fields. May be nil.
	Info *TagMap
	// Algorithms to generate manifests and tagmanifests for. Empty
	// means DefaultAlgorithms.
	Algorithms []string
	// Parallelism bounds the number of concurrent per-file digest
	// computations. Zero or less means sequential.
	Parallelism int
	// Encoding is the text encoding for the tag and manifest files.
	// Empty means UTF-8.
	Encoding string
}

// MakeBag converts the directory dir into a bag, in place: the existing
// entries of dir become its data/ payload, and the tag files, manifests,
// and tagmanifests are written next to it. The bag-info.txt gets the
// caller fields from opts.Info plus generated Payload-Oxum and
// Bagging-Date fields.
func MakeBag(dir string, opts Options) (*Bag, error) {
	algs, err := normalizeAlgorithms(opts.Algorithms)
	if err != nil {
		return nil, err
	}
	if !ValidEncoding(opts.Encoding) {
		return nil, errors.Errorf("unsupported text encoding %q", opts.Encoding)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "make bag %s", dir)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("make bag %s: not a directory", dir)
	}

	if err := moveIntoPayload(dir); err != nil {
		return nil, err
	}

	b := &Bag{
		dir:         dir,
		encoding:    opts.Encoding,
		parallelism: opts.Parallelism,
		algorithms:  algs,
		info:        opts.Info.Copy(),
	}
	b.info.Set("Bagging-Date", time.Now().Format("2006-01-02"))

	if err := b.writeDeclaration(); err != nil {
		return nil, err
	}
	if err := b.Save(true); err != nil {
		return nil, err
	}
	return b, nil
}

// moveIntoPayload relocates every entry of dir under a new data/
// subdirectory. A staging name is used so a payload entry itself named
// "data" does not collide.
func moveIntoPayload(dir string) error {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "make bag %s", dir)
	}
	tmp, err := ioutil.TempDir(dir, ".payload-")
	if err != nil {
		return errors.Wrapf(err, "make bag %s", dir)
	}
	for _, entry := range entries {
		src := filepath.Join(dir, entry.Name())
		if err := os.Rename(src, filepath.Join(tmp, entry.Name())); err != nil {
			return errors.Wrapf(err, "move %s", src)
		}
	}
	payload := filepath.Join(dir, PayloadDir)
	if err := os.Rename(tmp, payload); err != nil {
		return errors.Wrapf(err, "move %s", tmp)
	}
	return errors.Wrapf(os.Chmod(payload, 0755), "make bag %s", dir)
}

// Open reads the tag files of an existing bag directory. The declared
// tag-file encoding from bagit.txt is used for everything else. The bag's
// regeneration algorithm set is initialized to the union of the manifest
// and tagmanifest files found on disk.
func Open(dir string) (*Bag, error) {
	decl, err := readTagFile(filepath.Join(dir, "bagit.txt"), "")
	if err != nil {
		return nil, err
	}
	encoding := strings.ToLower(decl.Value("Tag-File-Character-Encoding"))
	if !ValidEncoding(encoding) {
		return nil, errors.Errorf("bag %s declares unsupported encoding %q", dir, encoding)
	}
	info, err := readTagFile(filepath.Join(dir, "bag-info.txt"), encoding)
	if err != nil {
		return nil, err
	}
	b := &Bag{
		dir:      dir,
		encoding: encoding,
		info:     info,
	}
	m, err := b.ManifestAlgorithms()
	if err != nil {
		return nil, err
	}
	tm, err := b.TagManifestAlgorithms()
	if err != nil {
		return nil, err
	}
	cs := ChecksumSet{Manifest: m, TagManifest: tm}
	b.algorithms = cs.Union()
	return b, nil
}

// Dir returns the path of the bag directory.
func (b *Bag) Dir() string { return b.dir }

// Info returns the bag-info.txt field set. Mutations take effect on the
// next Save.
func (b *Bag) Info() *TagMap { return b.info }

// Encoding returns the declared tag-file encoding.
func (b *Bag) Encoding() string { return b.encoding }

// SetParallelism bounds concurrent digest computation for later Save and
// Validate calls.
func (b *Bag) SetParallelism(n int) { b.parallelism = n }

// SetAlgorithms changes the algorithm set used by later Save calls.
func (b *Bag) SetAlgorithms(algs []string) error {
	normalized, err := normalizeAlgorithms(algs)
	if err != nil {
		return err
	}
	b.algorithms = normalized
	return nil
}

// writeDeclaration writes bagit.txt: exactly a version line and an
// encoding line, in the encoding it declares.
func (b *Bag) writeDeclaration() error {
	name := b.encoding
	if name == "" {
		name = "utf-8"
	}
	decl := NewTagMap()
	decl.Set("BagIt-Version", Version)
	decl.Set("Tag-File-Character-Encoding", strings.ToUpper(name))
	return writeTagFile(filepath.Join(b.dir, "bagit.txt"), decl, b.encoding)
}

// Save writes bag-info.txt back to disk and regenerates the tagmanifest
// files for the bag's algorithm set. If regenManifests is true the
// payload manifests and the Payload-Oxum field are recomputed first;
// otherwise the payload manifests on disk are left exactly as they are.
func (b *Bag) Save(regenManifests bool) error {
	if regenManifests {
		files, err := payloadFiles(b.dir)
		if err != nil {
			return err
		}
		digests, err := computeDigests(b.dir, files, b.algorithms, b.parallelism)
		if err != nil {
			return err
		}
		for _, alg := range b.algorithms {
			if err := writeManifestFile(b.dir, manifestName(alg), digests[alg], b.encoding); err != nil {
				return err
			}
		}
		octets, count, err := PayloadOxum(filepath.Join(b.dir, PayloadDir))
		if err != nil {
			return err
		}
		b.info.Set("Payload-Oxum", FormatOxum(octets, count))
	}
	if err := writeTagFile(filepath.Join(b.dir, "bag-info.txt"), b.info, b.encoding); err != nil {
		return err
	}
	// tagmanifests go last so they cover the files just written
	return b.writeTagManifests()
}

func (b *Bag) writeTagManifests() error {
	files, err := tagFiles(b.dir)
	if err != nil {
		return err
	}
	digests, err := computeDigests(b.dir, files, b.algorithms, b.parallelism)
	if err != nil {
		return err
	}
	for _, alg := range b.algorithms {
		if err := writeManifestFile(b.dir, tagManifestName(alg), digests[alg], b.encoding); err != nil {
			return err
		}
	}
	return nil
}

// ManifestAlgorithms reports which payload manifest files exist on disk.
func (b *Bag) ManifestAlgorithms() ([]string, error) {
	return b.algorithmsOnDisk("manifest-")
}

// TagManifestAlgorithms reports which tagmanifest files exist on disk.
func (b *Bag) TagManifestAlgorithms() ([]string, error) {
	return b.algorithmsOnDisk("tagmanifest-")
}

func (b *Bag) algorithmsOnDisk(prefix string) ([]string, error) {
	entries, err := ioutil.ReadDir(b.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", b.dir)
	}
	var algs []string
	for _, fi := range entries {
		name := fi.Name()
		if !fi.Mode().IsRegular() ||
			!strings.HasPrefix(name, prefix) ||
			!strings.HasSuffix(name, ".txt") {
			continue
		}
		// "manifest-" is a prefix of "tagmanifest-"; don't let the
		// payload listing pick up tagmanifests.
		if prefix == "manifest-" && strings.HasPrefix(name, "tagmanifest-") {
			continue
		}
		algs = append(algs, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".txt"))
	}
	return algs, nil
}

// RemoveManifest deletes the payload manifest file for alg.
func (b *Bag) RemoveManifest(alg string) error {
	path := filepath.Join(b.dir, manifestName(alg))
	return errors.Wrapf(os.Remove(path), "remove %s", path)
}

// RemoveTagManifest deletes the tagmanifest file for alg.
func (b *Bag) RemoveTagManifest(alg string) error {
	path := filepath.Join(b.dir, tagManifestName(alg))
	return errors.Wrapf(os.Remove(path), "remove %s", path)
}
