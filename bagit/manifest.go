package bagit

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/archivelib/bagbuilder/util"
)

// Manifest lines have the exact form "<hexdigest>  <relative-path>\n".
// The 2 spaces is to be identical to the GNU md5sum output. Although
// md5sum outputs " *" to mark binary mode, that results in each file name
// being prefixed with an asterisk.

func manifestName(alg string) string    { return "manifest-" + alg + ".txt" }
func tagManifestName(alg string) string { return "tagmanifest-" + alg + ".txt" }

// payloadFiles lists every regular file under the bag's data directory.
// Paths are relative to the bag root, forward-slash separated regardless
// of the host convention, and sorted lexicographically.
func payloadFiles(bagdir string) ([]string, error) {
	root := filepath.Join(bagdir, PayloadDir)
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			return errors.Errorf("payload file %s is not a regular file", path)
		}
		rel, err := filepath.Rel(bagdir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", root)
	}
	sort.Strings(files)
	return files, nil
}

// tagFiles lists the regular files directly inside the bag root, except
// the tagmanifest files themselves. These are the files a tagmanifest
// attests to: bagit.txt, bag-info.txt, and the payload manifests.
func tagFiles(bagdir string) ([]string, error) {
	entries, err := os.Open(bagdir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", bagdir)
	}
	names, err := entries.Readdir(-1)
	entries.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", bagdir)
	}
	var files []string
	for _, fi := range names {
		if !fi.Mode().IsRegular() {
			continue
		}
		if strings.HasPrefix(fi.Name(), "tagmanifest-") {
			continue
		}
		files = append(files, fi.Name())
	}
	sort.Strings(files)
	return files, nil
}

// computeDigests hashes each named file (relative to bagdir) under every
// algorithm in algs, reading each file exactly once. Independent files
// are hashed concurrently, up to parallelism goroutines at a time. The
// result maps algorithm -> relative path -> hex digest.
func computeDigests(bagdir string, files []string, algs []string, parallelism int) (map[string]map[string]string, error) {
	result := make(map[string]map[string]string, len(algs))
	for _, alg := range algs {
		result[alg] = make(map[string]string, len(files))
	}
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	gate := util.NewGate(parallelism)
	for _, name := range files {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			gate.Enter()
			defer gate.Leave()
			sums, err := digestFile(filepath.Join(bagdir, filepath.FromSlash(name)), algs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for alg, sum := range sums {
				result[alg][name] = hex.EncodeToString(sum)
			}
		}(name)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func digestFile(path string, algs []string) (map[string][]byte, error) {
	hashes, err := Hashes(algs)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "digest %s", path)
	}
	defer f.Close()
	hw := util.NewHashWriterPlain(hashes)
	if _, err := io.Copy(hw, f); err != nil {
		return nil, errors.Wrapf(err, "digest %s", path)
	}
	return hw.Sums(), nil
}

// writeManifestFile serializes entries into name inside bagdir, sorted by
// relative path so the output is deterministic no matter what order the
// digests were computed in.
func writeManifestFile(bagdir, name string, entries map[string]string, encoding string) error {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	full := filepath.Join(bagdir, name)
	f, err := os.Create(full)
	if err != nil {
		return errors.Wrapf(err, "write %s", full)
	}
	out, err := encodeWriter(f, encoding)
	if err != nil {
		f.Close()
		return err
	}
	var werr error
	for _, p := range paths {
		if _, werr = fmt.Fprintf(out, "%s  %s\n", entries[p], p); werr != nil {
			break
		}
	}
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return errors.Wrapf(werr, "write %s", full)
}

// readManifestFile parses a manifest or tagmanifest file back into a map
// from relative path to hex digest.
func readManifestFile(path string, encoding string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	defer f.Close()
	in, err := decodeReader(f, encoding)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.Index(line, "  ")
		if i < 0 {
			return nil, errors.Errorf("%s: malformed manifest line %q", path, line)
		}
		digest := strings.TrimSpace(line[:i])
		name := strings.TrimSpace(line[i+2:])
		if digest == "" || name == "" {
			return nil, errors.Errorf("%s: malformed manifest line %q", path, line)
		}
		entries[name] = digest
	}
	return entries, errors.Wrapf(scanner.Err(), "read %s", path)
}

// PayloadOxum sums every regular file under payloadRoot, returning the
// total octet count and the total file count.
func PayloadOxum(payloadRoot string) (int64, int, error) {
	var octets int64
	var count int
	err := filepath.Walk(payloadRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			octets += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "oxum %s", payloadRoot)
	}
	return octets, count, nil
}

// FormatOxum renders an octet and file count as the Payload-Oxum field
// value, "<octets>.<count>".
func FormatOxum(octets int64, count int) string {
	return fmt.Sprintf("%d.%d", octets, count)
}

// ParseOxum is the inverse of FormatOxum.
func ParseOxum(s string) (int64, int, error) {
	i := strings.Index(s, ".")
	if i < 0 {
		return 0, 0, errors.Errorf("malformed oxum %q", s)
	}
	octets, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, 0, errors.Errorf("malformed oxum %q", s)
	}
	count, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return 0, 0, errors.Errorf("malformed oxum %q", s)
	}
	return octets, count, nil
}
