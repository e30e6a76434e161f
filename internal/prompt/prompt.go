// Package prompt builds whole-unit translation prompts, optionally from
// user-supplied templates in a prompts directory.
package prompt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/chunker"
)

// DefaultSystemInstruction is used when no system template exists.
const DefaultSystemInstruction = "You are an expert C and Rust programmer. Translate the given C code to safe, idiomatic Rust. " +
	"Preserve behaviour and public function names. Avoid unsafe unless unavoidable. " +
	"Return only the complete Rust code in a single ```rust block."

const (
	fileTemplateName   = "file_conversion.md"
	systemTemplateName = "system.md"
)

// Provider renders the prompt for a unit. targetFunctions, when non-empty,
// restricts the translation to those functions.
type Provider interface {
	Build(ctx context.Context, unit internal.Unit, targetFunctions []string) (string, error)
	SystemInstruction() string
}

// FileProvider reads optional templates from Dir. Missing templates fall
// back to the built-in layout.
type FileProvider struct {
	Dir string
}

// Data is passed to a file_conversion.md template.
type Data struct {
	Unit            internal.Unit
	Context         *chunker.GlobalContext
	ContextHeader   string
	TargetFunctions []string
	Source          string
}

func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

func (p *FileProvider) Build(ctx context.Context, unit internal.Unit, targetFunctions []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	gctx := chunker.ExtractGlobalContext(unit.SourceText)
	data := Data{
		Unit:            unit,
		Context:         gctx,
		ContextHeader:   gctx.Header(),
		TargetFunctions: targetFunctions,
		Source:          unit.SourceText,
	}

	tmpl, err := p.load(fileTemplateName)
	if err != nil {
		return "", err
	}
	if tmpl == "" {
		return defaultPrompt(data), nil
	}

	t, err := template.New(fileTemplateName).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", fileTemplateName, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", fileTemplateName, err)
	}
	return buf.String(), nil
}

func (p *FileProvider) SystemInstruction() string {
	s, err := p.load(systemTemplateName)
	if err != nil || strings.TrimSpace(s) == "" {
		return DefaultSystemInstruction
	}
	return strings.TrimSpace(s)
}

func (p *FileProvider) load(name string) (string, error) {
	if p == nil || p.Dir == "" {
		return "", nil
	}
	b, err := os.ReadFile(filepath.Join(p.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}
	return string(b), nil
}

func defaultPrompt(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the C file `%s` to Rust.\n", filepath.Base(d.Unit.Path))
	if len(d.TargetFunctions) > 0 {
		fmt.Fprintf(&b, "Only translate these functions: %s\n", strings.Join(d.TargetFunctions, ", "))
	}
	if d.ContextHeader != "" {
		b.WriteString("\n")
		b.WriteString(d.ContextHeader)
	}
	b.WriteString("\n```c\n")
	b.WriteString(d.Source)
	if !strings.HasSuffix(d.Source, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	return b.String()
}
