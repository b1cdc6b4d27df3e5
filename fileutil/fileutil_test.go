package fileutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestListDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "fileutil-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		err := ioutil.WriteFile(filepath.Join(dir, name), []byte(name), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := ListDirectory(dir, nil)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if !reflect.DeepEqual(all, []string{"alpha", "beta", "gamma"}) {
		t.Errorf("Received %v, expected [alpha beta gamma]", all)
	}

	some, err := ListDirectory(dir, func(name string) bool {
		return name != "beta"
	})
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if !reflect.DeepEqual(some, []string{"alpha", "gamma"}) {
		t.Errorf("Received %v, expected [alpha gamma]", some)
	}
}

func TestCopyTree(t *testing.T) {
	dir, err := ioutil.TempDir("", "fileutil-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src")
	os.MkdirAll(filepath.Join(src, "sub", "subsub"), 0755)
	ioutil.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0644)
	ioutil.WriteFile(filepath.Join(src, "sub", "middle.txt"), []byte("middle"), 0600)
	ioutil.WriteFile(filepath.Join(src, "sub", "subsub", "deep.txt"), []byte("deep"), 0644)

	dst := filepath.Join(dir, "dst")
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("Received %s", err.Error())
	}

	var table = []struct {
		path    string
		content string
	}{
		{"top.txt", "top"},
		{filepath.Join("sub", "middle.txt"), "middle"},
		{filepath.Join("sub", "subsub", "deep.txt"), "deep"},
	}
	for _, test := range table {
		data, err := ioutil.ReadFile(filepath.Join(dst, test.path))
		if err != nil {
			t.Errorf("Received %s", err.Error())
			continue
		}
		if string(data) != test.content {
			t.Errorf("Received %s, expected %s", data, test.content)
		}
	}

	fi, err := os.Stat(filepath.Join(dst, "sub", "middle.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0600 {
		t.Errorf("Received mode %v, expected 0600", fi.Mode().Perm())
	}

	// the source is untouched
	if _, err := os.Stat(filepath.Join(src, "top.txt")); err != nil {
		t.Errorf("Received %s", err.Error())
	}
}

func TestRename(t *testing.T) {
	dir, err := ioutil.TempDir("", "fileutil-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	old := filepath.Join(dir, "old")
	os.Mkdir(old, 0755)
	ioutil.WriteFile(filepath.Join(old, "a.txt"), []byte("a"), 0644)

	renamed := filepath.Join(dir, "new")
	if err := Rename(old, renamed); err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if _, err := os.Stat(filepath.Join(renamed, "a.txt")); err != nil {
		t.Errorf("Received %s", err.Error())
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("Old path still exists")
	}
}

func TestIsCrossDevice(t *testing.T) {
	wrapped := errors.Wrapf(ErrCrossDevice, "rename %s to %s", "/a", "/b")
	if !IsCrossDevice(wrapped) {
		t.Errorf("Wrapped ErrCrossDevice was not recognized")
	}
	if IsCrossDevice(errors.New("something else")) {
		t.Errorf("Unrelated error recognized as cross-device")
	}
	if IsCrossDevice(nil) {
		t.Errorf("nil recognized as cross-device")
	}
}

func TestSweepStaging(t *testing.T) {
	dir, err := ioutil.TempDir("", "fileutil-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	stale := filepath.Join(dir, StagingPrefix+"stale")
	fresh := filepath.Join(dir, StagingPrefix+"fresh")
	other := filepath.Join(dir, "not-staging")
	for _, d := range []string{stale, fresh, other} {
		os.Mkdir(d, 0755)
	}
	longAgo := time.Now().Add(-48 * time.Hour)
	os.Chtimes(stale, longAgo, longAgo)
	os.Chtimes(other, longAgo, longAgo)

	removed, err := SweepStaging(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if len(removed) != 1 || removed[0] != stale {
		t.Errorf("Received %v, expected [%s]", removed, stale)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Stale staging directory was not removed")
	}
	for _, d := range []string{fresh, other} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("%s should not have been removed", d)
		}
	}

	// sweeping a missing parent is not an error
	if _, err := SweepStaging(filepath.Join(dir, "no-such"), time.Hour); err != nil {
		t.Errorf("Received %s", err.Error())
	}
}
