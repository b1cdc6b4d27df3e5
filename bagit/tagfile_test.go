package bagit

import (
	"bytes"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestTagMapOrder(t *testing.T) {
	tm := NewTagMap()
	tm.Set("Source-Organization", "Example University")
	tm.Add("Contact-Name", "A. Archivist")
	tm.Add("Contact-Name", "B. Archivist")
	tm.Set("External-Identifier", "ark:/12345/xyz")

	if got := tm.Keys(); !reflect.DeepEqual(got,
		[]string{"Source-Organization", "Contact-Name", "External-Identifier"}) {
		t.Errorf("Received keys %v", got)
	}
	if got := tm.Get("Contact-Name"); !reflect.DeepEqual(got,
		[]string{"A. Archivist", "B. Archivist"}) {
		t.Errorf("Received %v", got)
	}
	if got := tm.Value("Contact-Name"); got != "A. Archivist" {
		t.Errorf("Received %s, expected A. Archivist", got)
	}

	var buf bytes.Buffer
	tm.WriteTo(&buf)
	const expected = `Source-Organization: Example University
Contact-Name: A. Archivist
Contact-Name: B. Archivist
External-Identifier: ark:/12345/xyz
`
	if buf.String() != expected {
		t.Errorf("Received %q, expected %q", buf.String(), expected)
	}

	tm.Delete("Contact-Name")
	if tm.Has("Contact-Name") {
		t.Errorf("Key still present after Delete")
	}
	if got := tm.Keys(); !reflect.DeepEqual(got,
		[]string{"Source-Organization", "External-Identifier"}) {
		t.Errorf("Received keys %v", got)
	}
}

func TestTagMapSetReplaces(t *testing.T) {
	tm := NewTagMap()
	tm.Add("Key", "one")
	tm.Add("Key", "two")
	tm.Set("Key", "three")
	if got := tm.Get("Key"); !reflect.DeepEqual(got, []string{"three"}) {
		t.Errorf("Received %v, expected [three]", got)
	}
	tm.Set("Key")
	if tm.Has("Key") {
		t.Errorf("Key still present after empty Set")
	}
}

func TestTagMapCopy(t *testing.T) {
	tm := NewTagMap()
	tm.Add("Key", "value")
	cp := tm.Copy()
	cp.Set("Key", "other")
	if got := tm.Value("Key"); got != "value" {
		t.Errorf("Copy mutated the original: %s", got)
	}

	var nilmap *TagMap
	cp = nilmap.Copy()
	if cp == nil || cp.Len() != 0 {
		t.Errorf("Copy of nil is not an empty TagMap")
	}
}

func TestParseTagMap(t *testing.T) {
	const input = `Source-Organization: Example University
Contact-Name: A. Archivist
External-Description: A very long description
   that wraps over
   several lines.
Contact-Name: B. Archivist
`
	tm, err := parseTagMap(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if got := tm.Value("External-Description"); got !=
		"A very long description that wraps over several lines." {
		t.Errorf("Received %q", got)
	}
	if got := tm.Get("Contact-Name"); !reflect.DeepEqual(got,
		[]string{"A. Archivist", "B. Archivist"}) {
		t.Errorf("Received %v", got)
	}

	if _, err := parseTagMap(strings.NewReader("no colon here\n")); err == nil {
		t.Errorf("Expected error for malformed line")
	}
	if _, err := parseTagMap(strings.NewReader("  starts with continuation\n")); err == nil {
		t.Errorf("Expected error for leading continuation line")
	}
}

func TestBaggingDateTime(t *testing.T) {
	out := BaggingDateTime(time.Now())
	matched, err := regexp.MatchString(
		`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})$`, out)
	if err != nil {
		t.Fatal(err)
	}
	if !matched {
		t.Errorf("Received %s, expected an ISO timestamp with offset", out)
	}

	loc := time.FixedZone("test", 2*60*60)
	when := time.Date(2023, 4, 3, 13, 37, 0, 0, loc)
	if out := BaggingDateTime(when); out != "2023-04-03T13:37:00+02:00" {
		t.Errorf("Received %s, expected 2023-04-03T13:37:00+02:00", out)
	}
}
