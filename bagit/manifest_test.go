package bagit

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestComputeDigests(t *testing.T) {
	bagdir, err := ioutil.TempDir("", "bagit-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(bagdir)

	os.MkdirAll(filepath.Join(bagdir, "data", "sub"), 0755)
	ioutil.WriteFile(filepath.Join(bagdir, "data", "file.txt"), []byte("hello"), 0644)
	ioutil.WriteFile(filepath.Join(bagdir, "data", "sub", "other.txt"), []byte("hello"), 0644)

	files, err := payloadFiles(bagdir)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if !reflect.DeepEqual(files, []string{"data/file.txt", "data/sub/other.txt"}) {
		t.Errorf("Received %v", files)
	}

	digests, err := computeDigests(bagdir, files, []string{"md5", "sha256"}, 2)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	var table = []struct {
		alg    string
		file   string
		digest string
	}{
		{"md5", "data/file.txt", "5d41402abc4b2a76b9719d911017c592"},
		{"sha256", "data/file.txt", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"sha256", "data/sub/other.txt", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
	}
	for _, test := range table {
		if got := digests[test.alg][test.file]; got != test.digest {
			t.Errorf("For %s of %s received %s, expected %s",
				test.alg, test.file, got, test.digest)
		}
	}
}

func TestManifestFileFormat(t *testing.T) {
	bagdir, err := ioutil.TempDir("", "bagit-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(bagdir)

	entries := map[string]string{
		"data/zz.txt": "5d41402abc4b2a76b9719d911017c592",
		"data/aa.txt": "5d41402abc4b2a76b9719d911017c592",
	}
	err = writeManifestFile(bagdir, "manifest-md5.txt", entries, "")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}

	data, err := ioutil.ReadFile(filepath.Join(bagdir, "manifest-md5.txt"))
	if err != nil {
		t.Fatal(err)
	}
	const expected = "5d41402abc4b2a76b9719d911017c592  data/aa.txt\n" +
		"5d41402abc4b2a76b9719d911017c592  data/zz.txt\n"
	if string(data) != expected {
		t.Errorf("Received %q, expected %q", data, expected)
	}

	back, err := readManifestFile(filepath.Join(bagdir, "manifest-md5.txt"), "")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if !reflect.DeepEqual(back, entries) {
		t.Errorf("Received %v, expected %v", back, entries)
	}
}

func TestPayloadOxum(t *testing.T) {
	dir, err := ioutil.TempDir("", "bagit-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	ioutil.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644)
	ioutil.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("hello world"), 0644)

	octets, count, err := PayloadOxum(dir)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if octets != 16 || count != 2 {
		t.Errorf("Received %d.%d, expected 16.2", octets, count)
	}
}

func TestOxumFormat(t *testing.T) {
	if out := FormatOxum(279164409832, 1198); out != "279164409832.1198" {
		t.Errorf("Received %s", out)
	}
	octets, count, err := ParseOxum("279164409832.1198")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if octets != 279164409832 || count != 1198 {
		t.Errorf("Received %d.%d", octets, count)
	}
	for _, bad := range []string{"", "123", "a.b", "12.x"} {
		if _, _, err := ParseOxum(bad); err == nil {
			t.Errorf("Expected error parsing %q", bad)
		}
	}
}
