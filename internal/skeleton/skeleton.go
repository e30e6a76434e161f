// Package skeleton creates the minimal Cargo project a translated unit is
// written into and validated in.
package skeleton

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/valpere/codetran/internal"
)

// Layout locates the files of a created project.
type Layout struct {
	Root     string
	Manifest string
	Artifact string
	Binary   bool
}

type manifest struct {
	Package      packageSection    `toml:"package"`
	Dependencies map[string]string `toml:"dependencies"`
}

type packageSection struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

var reMain = regexp.MustCompile(`(?m)^[a-zA-Z_][a-zA-Z0-9_*\s]*\bmain\s*\(`)

// HasMain reports whether a C source defines main.
func HasMain(source string) bool {
	return reMain.MatchString(source)
}

// Create writes Cargo.toml and an empty entry file under dir/<crate>. It is
// idempotent: existing files are left untouched.
func Create(dir string, unit internal.Unit) (Layout, error) {
	name := CrateName(unit.Name)
	root := filepath.Join(dir, name)
	layout := Layout{
		Root:     root,
		Manifest: filepath.Join(root, "Cargo.toml"),
		Binary:   HasMain(unit.SourceText),
	}
	if layout.Binary {
		layout.Artifact = filepath.Join(root, "src", "main.rs")
	} else {
		layout.Artifact = filepath.Join(root, "src", "lib.rs")
	}

	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		return Layout{}, fmt.Errorf("failed to create project directory: %w", err)
	}

	if _, err := os.Stat(layout.Manifest); os.IsNotExist(err) {
		var buf bytes.Buffer
		m := manifest{
			Package:      packageSection{Name: name, Version: "0.1.0", Edition: "2021"},
			Dependencies: map[string]string{},
		}
		if err := toml.NewEncoder(&buf).Encode(m); err != nil {
			return Layout{}, fmt.Errorf("failed to encode manifest: %w", err)
		}
		if err := os.WriteFile(layout.Manifest, buf.Bytes(), 0644); err != nil {
			return Layout{}, fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	if _, err := os.Stat(layout.Artifact); os.IsNotExist(err) {
		stub := "// Placeholder until translation completes\n"
		if layout.Binary {
			stub += "fn main() {}\n"
		}
		if err := os.WriteFile(layout.Artifact, []byte(stub), 0644); err != nil {
			return Layout{}, fmt.Errorf("failed to write entry file: %w", err)
		}
	}
	return layout, nil
}

// WriteArtifact replaces the entry file content.
func (l Layout) WriteArtifact(code string) error {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	return os.WriteFile(l.Artifact, []byte(code), 0644)
}

// ReadArtifact returns the current entry file content.
func (l Layout) ReadArtifact() (string, error) {
	b, err := os.ReadFile(l.Artifact)
	return string(b), err
}

// CrateName turns a file stem into a valid Cargo package name.
func CrateName(stem string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "unit"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "c_" + name
	}
	return name
}
