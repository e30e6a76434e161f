package placeholder

import (
	"reflect"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	got := Render(2, "request timed out")
	want := "// BEGIN UNTRANSLATED CHUNK 2\n" +
		"// Failed to translate chunk 2\n" +
		"// Error: request timed out\n" +
		"// END UNTRANSLATED CHUNK 2"
	if got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_MultiLineReason(t *testing.T) {
	got := Render(0, "line one\nline two")
	for _, line := range strings.Split(got, "\n") {
		if !strings.HasPrefix(line, "//") {
			t.Errorf("line %q escapes the comment block", line)
		}
	}
}

func TestRender_EmptyReason(t *testing.T) {
	if !strings.Contains(Render(1, ""), "no successful attempt recorded") {
		t.Error("expected default reason")
	}
}

func TestFailedChunks(t *testing.T) {
	code := strings.Join([]string{
		"// header",
		"fn ok() {}",
		Render(3, "boom"),
		"fn other() {}",
		Render(1, "timeout"),
		"// BEGIN UNTRANSLATED CHUNK 9",
		"dangling begin",
	}, "\n")

	got := FailedChunks(code)
	if !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("FailedChunks() = %v, want [1 3]", got)
	}
}

func TestFailedChunks_None(t *testing.T) {
	if got := FailedChunks("fn main() {}\n"); len(got) != 0 {
		t.Errorf("expected no failed chunks, got %v", got)
	}
}

func TestReason(t *testing.T) {
	code := "x\n" + Render(4, "first\nsecond") + "\ny"

	got, ok := Reason(code, 4)
	if !ok {
		t.Fatal("expected reason to be found")
	}
	if got != "first\nsecond" {
		t.Errorf("Reason() = %q", got)
	}

	if _, ok := Reason(code, 5); ok {
		t.Error("expected no reason for chunk 5")
	}
}
