package chunker_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/valpere/codetran/internal/chunker"
	"github.com/valpere/codetran/internal/retry"
)

const arithmetic = `#include <stdio.h>

int add(int a, int b) {
    return a + b;
}

int subtract(int a, int b) {
    return a - b;
}

int multiply(int a, int b) {
    return a * b;
}

int main(void) {
    printf("%d\n", add(1, 2));
    printf("%d\n", subtract(5, 3));
    printf("%d\n", multiply(2, 4));
    return 0;
}
`

func joined(chunks []chunker.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content)
	}
	return b.String()
}

func checkCoverage(t *testing.T, chunks []chunker.Chunk, totalLines int) {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0].StartLine != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].StartLine)
	}
	for i, c := range chunks {
		if c.ID != i {
			t.Errorf("chunk %d has id %d", i, c.ID)
		}
		if c.StartLine >= c.EndLine {
			t.Errorf("chunk %d: start %d >= end %d", i, c.StartLine, c.EndLine)
		}
		if i > 0 && c.StartLine != chunks[i-1].EndLine {
			t.Errorf("chunk %d starts at %d, previous ended at %d", i, c.StartLine, chunks[i-1].EndLine)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndLine != totalLines {
		t.Errorf("last chunk ends at %d, want %d", last.EndLine, totalLines)
	}
}

func TestSplit_LineWindowsBelowThreshold(t *testing.T) {
	p := chunker.NewPlanner(nil, 0)
	chunks, err := p.Split(arithmetic, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	checkCoverage(t, chunks, 20)
	if joined(chunks) != arithmetic {
		t.Error("chunks do not reassemble the source")
	}

	if got := chunks[0].Functions; !reflect.DeepEqual(got, []string{"add", "subtract"}) {
		t.Errorf("chunk 0 functions = %v", got)
	}
	if got := chunks[1].Functions; !reflect.DeepEqual(got, []string{"multiply", "main"}) {
		t.Errorf("chunk 1 functions = %v", got)
	}
	if got := chunks[1].Dependencies; !reflect.DeepEqual(got, []string{"add", "subtract"}) {
		t.Errorf("chunk 1 dependencies = %v", got)
	}
	if len(chunks[0].Dependencies) != 0 {
		t.Errorf("chunk 0 should have no dependencies, got %v", chunks[0].Dependencies)
	}
}

func TestSplit_GroupsWholeFunctions(t *testing.T) {
	p := chunker.NewPlanner(chunker.RegexDetector{}, 5)
	chunks, err := p.Split(arithmetic, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, chunks, 20)

	want := [][2]int{{0, 6}, {6, 14}, {14, 20}}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		if chunks[i].StartLine != w[0] || chunks[i].EndLine != w[1] {
			t.Errorf("chunk %d = [%d,%d), want [%d,%d)", i, chunks[i].StartLine, chunks[i].EndLine, w[0], w[1])
		}
	}
	if !reflect.DeepEqual(chunks[1].Functions, []string{"subtract", "multiply"}) {
		t.Errorf("chunk 1 functions = %v", chunks[1].Functions)
	}
}

func TestSplit_OversizedFunctionStaysWhole(t *testing.T) {
	var b strings.Builder
	b.WriteString("int big(void) {\n")
	for i := 0; i < 30; i++ {
		b.WriteString("    x++;\n")
	}
	b.WriteString("}\n")
	b.WriteString("int small(void) {\n    return 1;\n}\n")
	src := b.String()

	p := chunker.NewPlanner(nil, 5)
	chunks, err := p.Split(src, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, chunks, 35)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Lines() != 32 {
		t.Errorf("oversized function chunk has %d lines, want 32", chunks[0].Lines())
	}
}

func TestSplit_Deterministic(t *testing.T) {
	p := chunker.NewPlanner(nil, 5)
	a, err := p.Split(arithmetic, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Split(arithmetic, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("two splits of the same input differ")
	}
}

func TestSplit_CoverageAcrossBudgets(t *testing.T) {
	p := chunker.NewPlanner(nil, 5)
	for _, max := range []int{1, 3, 7, 10, 19, 20, 100} {
		chunks, err := p.Split(arithmetic, max)
		if err != nil {
			t.Fatalf("max=%d: unexpected error: %v", max, err)
		}
		checkCoverage(t, chunks, 20)
		if joined(chunks) != arithmetic {
			t.Errorf("max=%d: chunks do not reassemble the source", max)
		}
	}
}

func TestSplit_EmptySource(t *testing.T) {
	p := chunker.NewPlanner(nil, 0)
	for _, src := range []string{"", "   \n\n\t\n"} {
		chunks, err := p.Split(src, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %d", src, len(chunks))
		}
	}
}

func TestSplit_InvalidBudget(t *testing.T) {
	p := chunker.NewPlanner(nil, 0)
	_, err := p.Split(arithmetic, 0)
	var pe *retry.PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlanningError, got %v", err)
	}
}

func TestSplit_NoTrailingNewline(t *testing.T) {
	src := "a\nb\nc"
	chunks, err := chunker.NewPlanner(nil, 0).Split(src, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, chunks, 3)
	if chunks[1].Content != "c" {
		t.Errorf("last chunk content = %q", chunks[1].Content)
	}
}

func TestSplit_SharedContext(t *testing.T) {
	chunks, err := chunker.NewPlanner(nil, 0).Split(arithmetic, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Context != chunks[0].Context {
			t.Errorf("chunk %d does not share the unit context", i)
		}
	}
}

func TestLookup(t *testing.T) {
	chunks, _ := chunker.NewPlanner(nil, 0).Split(arithmetic, 10)
	if _, err := chunker.Lookup(chunks, 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := chunker.Lookup(chunks, 7); !errors.Is(err, chunker.ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestExtractGlobalContext(t *testing.T) {
	src := `#include <stdio.h>
#include "util.h"
#include <stdio.h>
#define MAX 10
#define MIN(a, b) ((a) < (b) ? (a) : (b))

typedef struct Point {
    int x;
    int y;
} Point;

enum Color { RED, GREEN };

static int counter = 0;
extern char *name;
int table[MAX];

int main(void) {
    int local = 1;
    return local;
}
`
	g := chunker.ExtractGlobalContext(src)

	if !reflect.DeepEqual(g.Includes, []string{"stdio.h", "util.h"}) {
		t.Errorf("includes = %v", g.Includes)
	}
	if !reflect.DeepEqual(g.Macros, []string{"MAX", "MIN"}) {
		t.Errorf("macros = %v", g.Macros)
	}
	if !reflect.DeepEqual(g.Types, []string{"Point", "Color"}) {
		t.Errorf("types = %v", g.Types)
	}
	for _, want := range []string{"counter", "name", "table"} {
		found := false
		for _, v := range g.Globals {
			if v == want {
				found = true
			}
		}
		if !found {
			t.Errorf("globals %v missing %q", g.Globals, want)
		}
	}
	for _, v := range g.Globals {
		if v == "local" {
			t.Error("indented local variable reported as global")
		}
	}

	header := g.Header()
	for _, want := range []string{"// Original includes:", "// #include <stdio.h>", "// type: Point", "// global: counter"} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q:\n%s", want, header)
		}
	}
}

func TestRegexDetector_SkipsControlFlow(t *testing.T) {
	src := "int f(int x) {\n  if (x) {\n  }\n}\nelse if (y) {\n}\nwhile (1) {\n}\n"
	got := chunker.RegexDetector{}.Detect(src)
	if len(got) != 1 || got[0].Name != "f" || got[0].Line != 0 {
		t.Errorf("unexpected boundaries: %+v", got)
	}
}

func TestRegexDetector_PointerReturn(t *testing.T) {
	got := chunker.RegexDetector{}.Detect("char *dup(const char *s) {\n}\n")
	if len(got) != 1 || got[0].Name != "dup" {
		t.Errorf("unexpected boundaries: %+v", got)
	}
}

func TestFunctionCalls(t *testing.T) {
	got := chunker.FunctionCalls(`if (x) { foo(1); bar (2); foo(3); while(y) baz(); }`)
	if !reflect.DeepEqual(got, []string{"foo", "baz"}) {
		t.Errorf("FunctionCalls = %v", got)
	}
}

func TestLocalIncludes(t *testing.T) {
	src := "#include <stdio.h>\n#include \"util.h\"\n  #include \"list/list.h\"\n#include \"util.h\"\n// #include \"skipped.h\" in a comment\n"
	got := chunker.LocalIncludes(src)
	want := []string{"util.h", "list/list.h"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LocalIncludes = %v, want %v", got, want)
	}
}
