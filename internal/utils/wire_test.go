package utils

import (
	"strings"
	"testing"
)

func TestMarshalNoEscape(t *testing.T) {
	payload := map[string]string{"cmd": "diff <old> >new"}

	out, err := MarshalNoEscape(payload)
	if err != nil {
		t.Fatalf("MarshalNoEscape returned error: %v", err)
	}

	got := string(out)
	if !strings.Contains(got, "diff <old> >new") {
		t.Errorf("angle brackets were escaped: %s", got)
	}
	if strings.Contains(got, `\u003c`) || strings.Contains(got, `\u003e`) {
		t.Errorf("output still HTML-escaped: %s", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Errorf("trailing newline not trimmed: %q", got)
	}
}

func TestMarshalNoEscapeUnsupportedType(t *testing.T) {
	if _, err := MarshalNoEscape(make(chan int)); err == nil {
		t.Error("expected error for unsupported type")
	}
}
