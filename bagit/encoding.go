package bagit

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Tag files and manifests are written in the encoding declared in
// bagit.txt. UTF-8 is the overwhelmingly common case and is passed
// through untouched; anything else is resolved by its IANA name.

func lookupEncoding(name string) (encoding.Encoding, error) {
	if isUTF8(name) {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, errors.Errorf("unsupported text encoding %q", name)
	}
	return enc, nil
}

// ValidEncoding reports whether name names a text encoding this package
// can write tag files in.
func ValidEncoding(name string) bool {
	_, err := lookupEncoding(name)
	return err == nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// encodeWriter wraps w so that writes of UTF-8 text come out in the named
// encoding. The returned writer must be closed to flush the transform;
// closing it does not close w.
func encodeWriter(w io.Writer, name string) (io.WriteCloser, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nopWriteCloser{w}, nil
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// decodeReader wraps r so that text in the named encoding reads back as
// UTF-8.
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
