// bagbuilder packages an intellectual entity directory into a BagIt bag
// from the command line.
//
// The source directory must contain a data directory and may contain a
// meta directory. By default the bag is built in place of the source;
// give -dest to build it somewhere else.
//
//	bagbuilder -src /path/to/entity [-dest /path/to/bag] [options]
//
// Bag metadata is given as a JSON file of key to string-or-list-of-string
// pairs, e.g.
//
//	{"Source-Organization": "Example University",
//	 "Contact-Name": ["A. Archivist", "B. Archivist"]}
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/archivelib/bagbuilder/bagit"
	"github.com/archivelib/bagbuilder/builder"
)

func main() {
	var (
		src          = flag.String("src", "", "intellectual entity directory to bag (required)")
		dest         = flag.String("dest", "", "directory to place the bag in (default: bag in place)")
		infoFile     = flag.String("info", "", "JSON file of bag-info.txt metadata")
		manifests    = flag.String("manifest", "", "comma separated manifest algorithms (default md5,sha1,sha256,sha512)")
		tagmanifests = flag.String("tagmanifest", "", "comma separated tagmanifest algorithms (default md5,sha1,sha256,sha512)")
		parallelism  = flag.Int("p", 1, "number of files to checksum at once")
		encoding     = flag.String("encoding", "utf-8", "text encoding for tag and manifest files")
		existOK      = flag.Bool("exist-ok", false, "allow an existing destination to be replaced")
	)
	flag.Parse()

	if *src == "" {
		fmt.Fprintln(os.Stderr, "a source directory is required (-src)")
		flag.Usage()
		os.Exit(2)
	}

	info := bagit.NewTagMap()
	if *infoFile != "" {
		if err := readInfoFile(*infoFile, info); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
	}

	b, err := builder.New(splitList(*manifests), splitList(*tagmanifests))
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	_, err = b.BuildBag(builder.Options{
		Source:      *src,
		Info:        info,
		Dest:        *dest,
		ExistOK:     *existOK,
		Parallelism: *parallelism,
		Encoding:    *encoding,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// readInfoFile loads the metadata JSON file into info. Values are either
// strings or arrays of strings. Keys are added in sorted order so the
// resulting bag-info.txt is stable across runs.
func readInfoFile(fname string, info *bagit.TagMap) error {
	f, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	obj, err := jason.NewObjectFromReader(f)
	if err != nil {
		return fmt.Errorf("%s: %s", fname, err)
	}
	m := obj.Map()
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, err := m[k].String(); err == nil {
			info.Add(k, s)
			continue
		}
		values, err := m[k].Array()
		if err != nil {
			return fmt.Errorf("%s: key %q is not a string or list of strings", fname, k)
		}
		for _, v := range values {
			s, err := v.String()
			if err != nil {
				return fmt.Errorf("%s: key %q is not a string or list of strings", fname, k)
			}
			info.Add(k, s)
		}
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
