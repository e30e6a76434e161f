package chunker

import (
	"regexp"
	"strings"
)

// Boundary is a detected function start: the 0-based line of its signature
// and the function name.
type Boundary struct {
	Line int
	Name string
}

// BoundaryDetector finds function start lines in a unit's source.
type BoundaryDetector interface {
	Detect(source string) []Boundary
}

// reFuncStart matches a return type, identifier, parenthesised argument list
// and opening brace at the start of a line.
var reFuncStart = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_*\s]*\s+\**([a-zA-Z_][a-zA-Z0-9_]*)\s*\([^)]*\)\s*\{`)

// reCall matches an identifier immediately followed by an opening paren.
var reCall = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\(`)

// keywords are never reported as function names or calls.
var keywords = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "while": {}, "do": {}, "switch": {},
	"case": {}, "return": {}, "sizeof": {}, "typedef": {}, "struct": {},
	"union": {}, "enum": {}, "defined": {}, "goto": {},
}

// IsKeyword reports whether name is a control keyword.
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// RegexDetector is a line-oriented heuristic detector. Signatures spanning
// several lines are not detected.
type RegexDetector struct{}

func (RegexDetector) Detect(source string) []Boundary {
	var out []Boundary
	for i, line := range splitLines(source) {
		m := reFuncStart.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if m == nil || IsKeyword(m[1]) || isControlLine(line) {
			continue
		}
		out = append(out, Boundary{Line: i, Name: m[1]})
	}
	return out
}

func isControlLine(line string) bool {
	f := strings.Fields(line)
	return len(f) > 0 && (f[0] == "else" || f[0] == "return" || f[0] == "do")
}

// FunctionCalls returns the distinct identifiers immediately followed by
// "(" in code, in order of first appearance, keywords excluded.
func FunctionCalls(code string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range reCall.FindAllStringSubmatch(code, -1) {
		name := m[1]
		if IsKeyword(name) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
