package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	goalMD5, _ := hex.DecodeString("0101fc798d94a730b0f0bf1bd2cc1959")
	goalSHA256, _ := hex.DecodeString("fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658")

	var w = new(bytes.Buffer)
	hw := NewHashWriter(w, map[string]hash.Hash{
		"md5":    md5.New(),
		"sha256": sha256.New(),
	})
	hw.Write([]byte(input))

	if w.String() != input {
		t.Errorf("Received %s, expected %s", w.String(), input)
	}
	if h := hw.Sum("md5"); !bytes.Equal(h, goalMD5) {
		t.Fatalf("Got %v, expected %v\n", h, goalMD5)
	}
	if h := hw.Sum("sha256"); !bytes.Equal(h, goalSHA256) {
		t.Fatalf("Got %v, expected %v\n", h, goalSHA256)
	}

	// an unknown name returns a nil digest
	if h := hw.Sum("sha1"); h != nil {
		t.Errorf("Received %v, expected nil", h)
	}

	sums := hw.Sums()
	if len(sums) != 2 {
		t.Errorf("Received %d sums, expected 2", len(sums))
	}
	if !bytes.Equal(sums["md5"], goalMD5) {
		t.Errorf("Received %v, expected %v", sums["md5"], goalMD5)
	}
}

func TestHashWriterPlain(t *testing.T) {
	goalMD5, _ := hex.DecodeString("0101fc798d94a730b0f0bf1bd2cc1959")
	hw := NewHashWriterPlain(map[string]hash.Hash{"md5": md5.New()})
	hw.Write([]byte("hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"))
	if h := hw.Sum("md5"); !bytes.Equal(h, goalMD5) {
		t.Fatalf("Got %v, expected %v\n", h, goalMD5)
	}
}
