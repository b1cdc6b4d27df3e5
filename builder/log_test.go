package builder

import (
	"strings"
	"testing"
)

func TestLogSeverities(t *testing.T) {
	l := NewLog("test-origin")
	l.Infof("step %d", 1)
	l.Warningf("something odd")
	l.Infof("step %d", 2)
	l.Errorf("it broke: %s", "badly")

	if n := len(l.All()); n != 4 {
		t.Errorf("Received %d entries, expected 4", n)
	}
	if n := len(l.Entries(Info)); n != 2 {
		t.Errorf("Received %d info entries, expected 2", n)
	}
	if n := len(l.Entries(Warning)); n != 1 {
		t.Errorf("Received %d warnings, expected 1", n)
	}
	errs := l.Entries(Error)
	if len(errs) != 1 {
		t.Fatalf("Received %d errors, expected 1", len(errs))
	}
	if errs[0].Body != "it broke: badly" {
		t.Errorf("Received %q", errs[0].Body)
	}
	if errs[0].Origin != "test-origin" {
		t.Errorf("Received origin %q", errs[0].Origin)
	}
	if !l.HasErrors() {
		t.Errorf("HasErrors returned false")
	}

	out := l.String()
	if !strings.Contains(out, "[ERROR] it broke: badly") {
		t.Errorf("Rendered log missing error line:\n%s", out)
	}
	if strings.Count(out, "\n") != 4 {
		t.Errorf("Rendered log has wrong line count:\n%s", out)
	}
}

func TestLogEmpty(t *testing.T) {
	l := NewLog("x")
	if l.HasErrors() {
		t.Errorf("Empty log claims to have errors")
	}
	if l.String() != "" {
		t.Errorf("Received %q, expected empty", l.String())
	}
}

func TestSeverityString(t *testing.T) {
	var table = []struct {
		input  Severity
		output string
	}{
		{Info, "INFO"},
		{Warning, "WARNING"},
		{Error, "ERROR"},
		{Severity(99), "UNKNOWN"},
	}
	for _, test := range table {
		if out := test.input.String(); out != test.output {
			t.Errorf("Received %s, expected %s", out, test.output)
		}
	}
}
