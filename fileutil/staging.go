package fileutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// StagingPrefix marks directories allocated as bag staging areas. The
// prefix is what lets SweepStaging tell an orphaned staging directory
// apart from anything else living in the same parent.
const StagingPrefix = "bagstage-"

// SweepStaging removes staging directories under parent that are older
// than maxAge. Only directories whose name begins with StagingPrefix are
// considered. A builder crash or kill leaves its staging directory
// behind; this is the idempotent cleanup for those orphans. It returns
// the paths removed.
func SweepStaging(parent string, maxAge time.Duration) ([]string, error) {
	entries, err := ioutil.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "sweep %s", parent)
	}
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, fi := range entries {
		if !fi.IsDir() || !strings.HasPrefix(fi.Name(), StagingPrefix) {
			continue
		}
		if !fi.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(parent, fi.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, errors.Wrapf(err, "sweep %s", path)
		}
		removed = append(removed, path)
	}
	return removed, nil
}
