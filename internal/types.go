package internal

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// WholeUnit is the chunk id carried by attempts that cover an entire unit.
const WholeUnit = -1

// Unit is one source file scheduled for translation.
type Unit struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	SourceText string    `json:"source_text"`
	SourceLang string    `json:"source_lang"`
	TargetLang string    `json:"target_lang"`
	HeaderPath string    `json:"header_path,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewUnit builds a Unit for the file at path. The id is the cleaned absolute
// path so it stays stable across runs.
func NewUnit(path, source, sourceLang, targetLang string) Unit {
	id := filepath.Clean(path)
	if abs, err := filepath.Abs(path); err == nil {
		id = abs
	}
	base := filepath.Base(path)
	return Unit{
		ID:         id,
		Path:       path,
		Name:       strings.TrimSuffix(base, filepath.Ext(base)),
		SourceText: source,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Timestamp:  time.Now(),
	}
}

// WithHeader folds the companion header of the unit into its source so the
// pair translates as one module. The header text comes first.
func (u Unit) WithHeader(path, text string) Unit {
	u.HeaderPath = path
	u.SourceText = fmt.Sprintf("/* %s */\n%s\n/* %s */\n%s", filepath.Base(path), strings.TrimRight(text, "\n"), filepath.Base(u.Path), u.SourceText)
	return u
}

// LineCount returns the number of lines in the unit's source.
func (u Unit) LineCount() int {
	return CountLines(u.SourceText)
}

// CountLines counts lines the way the planner does: a trailing newline does
// not open an extra empty line.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// Clip returns the longest prefix of s that fits in n bytes without
// splitting a UTF-8 sequence.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Status is the outcome of a single translation attempt.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Attempt is the recorded outcome of translating one chunk (or a whole unit
// when ChunkID is WholeUnit).
type Attempt struct {
	ChunkID      int           `json:"chunk_id"`
	Number       int           `json:"number"`
	Status       Status        `json:"status"`
	Code         string        `json:"code,omitempty"`
	Confidence   float64       `json:"confidence"`
	Warnings     []string      `json:"warnings,omitempty"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Transient    bool          `json:"transient,omitempty"`
	Latency      time.Duration `json:"latency"`
}

// Succeeded reports whether the attempt produced usable code.
func (a Attempt) Succeeded() bool {
	return a.Status == StatusSucceeded
}

// Success builds a succeeded attempt.
func Success(chunkID int, code string, confidence float64, warnings, deps []string) Attempt {
	return Attempt{
		ChunkID:      chunkID,
		Status:       StatusSucceeded,
		Code:         code,
		Confidence:   confidence,
		Warnings:     warnings,
		Dependencies: deps,
	}
}

// Failure builds a failed attempt. Failed attempts never carry code.
func Failure(chunkID int, reason string, transient bool) Attempt {
	return Attempt{
		ChunkID:   chunkID,
		Status:    StatusFailed,
		Reason:    reason,
		Transient: transient,
	}
}
