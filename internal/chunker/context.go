package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// GlobalContext is the unit-wide declaration summary attached to every
// chunk. It is built once per plan and never modified afterwards.
type GlobalContext struct {
	Includes []string `json:"includes,omitempty"`
	Types    []string `json:"types,omitempty"`
	Globals  []string `json:"globals,omitempty"`
	Macros   []string `json:"macros,omitempty"`
}

var (
	reInclude = regexp.MustCompile(`#include\s+[<"](.*?)[>"]`)
	reType    = regexp.MustCompile(`(?m)^(?:typedef\s+)?(?:struct|union|enum)\s+(\w+)`)
	reGlobal  = regexp.MustCompile(`(?m)^(?:extern[ \t]+)?(?:static[ \t]+)?[a-zA-Z_][a-zA-Z0-9_* \t]*[ \t*]+([a-zA-Z_][a-zA-Z0-9_]*)[ \t]*(?:\[[^\]\n]*\][ \t]*)?[;=]`)
	reMacro   = regexp.MustCompile(`(?m)^#define\s+(\w+)`)
	reLocal   = regexp.MustCompile(`(?m)^[ \t]*#include\s+"([^"]+)"`)
)

// ExtractGlobalContext scans source for includes, type names, top-level
// variables and macro names. Each list is deduplicated in source order.
func ExtractGlobalContext(source string) *GlobalContext {
	return &GlobalContext{
		Includes: captures(reInclude, source),
		Types:    captures(reType, source),
		Globals:  captures(reGlobal, source),
		Macros:   captures(reMacro, source),
	}
}

// LocalIncludes returns the quoted #include paths of source, the ones that
// name files of the same project.
func LocalIncludes(source string) []string {
	return captures(reLocal, source)
}

// Header renders the context as comment lines prepended to a chunk prompt.
func (g *GlobalContext) Header() string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	if len(g.Includes) > 0 {
		b.WriteString("// Original includes:\n")
		for _, inc := range g.Includes {
			fmt.Fprintf(&b, "// #include <%s>\n", inc)
		}
	}
	if len(g.Types) > 0 {
		b.WriteString("// Type definitions in this file:\n")
		for _, t := range g.Types {
			fmt.Fprintf(&b, "// type: %s\n", t)
		}
	}
	if len(g.Globals) > 0 {
		b.WriteString("// Global variables in this file:\n")
		for _, v := range g.Globals {
			fmt.Fprintf(&b, "// global: %s\n", v)
		}
	}
	if len(g.Macros) > 0 {
		b.WriteString("// Macros in this file:\n")
		for _, m := range g.Macros {
			fmt.Fprintf(&b, "// macro: %s\n", m)
		}
	}
	return b.String()
}

func captures(re *regexp.Regexp, s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if len(m) < 2 || m[1] == "" {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
