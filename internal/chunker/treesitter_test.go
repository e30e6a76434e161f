package chunker_test

import (
	"testing"

	"github.com/valpere/codetran/internal/chunker"
)

func TestTreeSitterDetector_MultiLineSignature(t *testing.T) {
	src := `#include <stdlib.h>

static char *
duplicate(const char *s,
          size_t n)
{
    return NULL;
}

int main(void) {
    return 0;
}
`
	got := chunker.TreeSitterDetector{}.Detect(src)
	if len(got) != 2 {
		t.Fatalf("expected 2 boundaries, got %+v", got)
	}
	if got[0].Name != "duplicate" || got[0].Line != 2 {
		t.Errorf("first boundary = %+v, want duplicate at line 2", got[0])
	}
	if got[1].Name != "main" || got[1].Line != 9 {
		t.Errorf("second boundary = %+v, want main at line 9", got[1])
	}
}

func TestTreeSitterDetector_WithPlanner(t *testing.T) {
	p := chunker.NewPlanner(chunker.TreeSitterDetector{}, 5)
	chunks, err := p.Split(arithmetic, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[2].Functions[0] != "main" {
		t.Errorf("last chunk functions = %v", chunks[2].Functions)
	}
}
