package bagit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// A TagMap holds the fields of a tag file such as bag-info.txt. It is an
// ordered multimap: keys keep their insertion order, and a key may carry
// several values, each serialized as its own "Key: value" line in order.
type TagMap struct {
	keys   []string
	values map[string][]string
}

// NewTagMap returns an empty TagMap.
func NewTagMap() *TagMap {
	return &TagMap{values: make(map[string][]string)}
}

// Set replaces the values for key. Setting no values removes the key.
// A key set for the first time is appended to the key order.
func (t *TagMap) Set(key string, values ...string) {
	if len(values) == 0 {
		t.Delete(key)
		return
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = append([]string{}, values...)
}

// Add appends one value to key, creating the key if needed.
func (t *TagMap) Add(key, value string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = append(t.values[key], value)
}

// Get returns the values for key, or nil if the key is absent.
func (t *TagMap) Get(key string) []string {
	return t.values[key]
}

// Value returns the first value for key, or "" if the key is absent.
func (t *TagMap) Value(key string) string {
	if vs := t.values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether key is present.
func (t *TagMap) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

// Delete removes key and all its values.
func (t *TagMap) Delete(key string) {
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (t *TagMap) Keys() []string {
	return append([]string{}, t.keys...)
}

// Len returns the number of distinct keys.
func (t *TagMap) Len() int {
	return len(t.keys)
}

// Copy returns a deep copy of t. Copy of nil is an empty TagMap.
func (t *TagMap) Copy() *TagMap {
	result := NewTagMap()
	if t == nil {
		return result
	}
	for _, k := range t.keys {
		result.Set(k, t.values[k]...)
	}
	return result
}

// WriteTo serializes t as "Key: value" lines, one line per value.
func (t *TagMap) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, k := range t.keys {
		for _, v := range t.values[k] {
			n, err := fmt.Fprintf(w, "%s: %s\n", k, v)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// parseTagMap reads "Key: value" lines. A line beginning with whitespace
// continues the previous value. Repeated keys accumulate values in order.
func parseTagMap(r io.Reader) (*TagMap, error) {
	result := NewTagMap()
	var lastKey string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			// continuation of the previous value
			if lastKey == "" {
				return nil, errors.New("tag file begins with a continuation line")
			}
			vs := result.values[lastKey]
			vs[len(vs)-1] += " " + strings.TrimSpace(line)
			continue
		}
		i := strings.Index(line, ":")
		if i < 0 {
			return nil, errors.Errorf("malformed tag line %q", line)
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		result.Add(key, value)
		lastKey = key
	}
	return result, scanner.Err()
}

// writeTagFile writes t to path in the given text encoding.
func writeTagFile(path string, t *TagMap, encoding string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	out, err := encodeWriter(f, encoding)
	if err != nil {
		f.Close()
		return err
	}
	_, werr := t.WriteTo(out)
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return errors.Wrapf(werr, "write %s", path)
}

// readTagFile parses the tag file at path using the given text encoding.
func readTagFile(path string, encoding string) (*TagMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	defer f.Close()
	in, err := decodeReader(f, encoding)
	if err != nil {
		return nil, err
	}
	t, err := parseTagMap(in)
	return t, errors.Wrapf(err, "read %s", path)
}

// BaggingDateTime formats t the way the Bagging-DateTime field expects:
// local wall-clock time with an explicit, colon-separated UTC offset,
// e.g. 2023-04-03T13:37:00+02:00.
func BaggingDateTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}
