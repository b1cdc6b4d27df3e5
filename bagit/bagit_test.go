package bagit

import (
	"reflect"
	"testing"
)

func TestNewChecksumSet(t *testing.T) {
	// names are lower-cased and deduplicated, first appearance wins
	cs, err := NewChecksumSet([]string{"SHA256", "md5", "sha256", " md5 "}, nil)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if !reflect.DeepEqual(cs.Manifest, []string{"sha256", "md5"}) {
		t.Errorf("Received %v, expected [sha256 md5]", cs.Manifest)
	}
	// an empty list means the default set
	if !reflect.DeepEqual(cs.TagManifest, DefaultAlgorithms()) {
		t.Errorf("Received %v, expected the default set", cs.TagManifest)
	}

	if _, err := NewChecksumSet([]string{"crc32"}, nil); err == nil {
		t.Errorf("Expected an error for an unknown algorithm")
	}
	if _, err := NewChecksumSet(nil, []string{"sha3"}); err == nil {
		t.Errorf("Expected an error for an unknown algorithm")
	}
}

func TestChecksumSetUnion(t *testing.T) {
	cs, err := NewChecksumSet([]string{"sha256", "md5"}, []string{"sha1", "md5"})
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if got := cs.Union(); !reflect.DeepEqual(got, []string{"md5", "sha1", "sha256"}) {
		t.Errorf("Received %v, expected [md5 sha1 sha256]", got)
	}
}

func TestHashes(t *testing.T) {
	hs, err := Hashes([]string{"md5", "sha512"})
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if len(hs) != 2 || hs["md5"] == nil || hs["sha512"] == nil {
		t.Errorf("Received %v", hs)
	}
	if _, err := Hashes([]string{"nope"}); err == nil {
		t.Errorf("Expected an error for an unknown algorithm")
	}
}

func TestValidEncoding(t *testing.T) {
	var table = []struct {
		name string
		ok   bool
	}{
		{"", true},
		{"utf-8", true},
		{"UTF-8", true},
		{"iso-8859-1", true},
		{"definitely-not-an-encoding", false},
	}
	for _, test := range table {
		if got := ValidEncoding(test.name); got != test.ok {
			t.Errorf("For %q received %v, expected %v", test.name, got, test.ok)
		}
	}
}
