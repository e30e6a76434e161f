// Package postprocess turns raw LLM responses into target-language code.
//
// Clean strips conversational artifacts (reasoning blocks, "Here is the
// code:" preambles). ExtractCode then picks the code out of the response,
// preferring a fence tagged with the target language, then any fence, and
// finally the cleaned response itself.
package postprocess

import (
	"regexp"
	"strings"
)

// Source says where ExtractCode found the code.
type Source int

const (
	SourceNone Source = iota
	SourceTaggedFence
	SourceFence
	SourceRaw
)

func (s Source) String() string {
	switch s {
	case SourceTaggedFence:
		return "tagged_fence"
	case SourceFence:
		return "fence"
	case SourceRaw:
		return "raw"
	default:
		return "none"
	}
}

// Clean removes LLM artifacts from text and returns the trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	return strings.TrimSpace(text)
}

// ExtractCode returns the code contained in response for language lang
// (for example "rust"). An empty result with SourceNone means the response
// held nothing usable.
func ExtractCode(response, lang string) (string, Source) {
	text := Clean(response)
	if text == "" {
		return "", SourceNone
	}

	blocks := fencedBlocks(text)
	for _, b := range blocks {
		if lang != "" && matchesLang(b.lang, lang) && strings.TrimSpace(b.body) != "" {
			return strings.TrimSpace(b.body), SourceTaggedFence
		}
	}
	for _, b := range blocks {
		if strings.TrimSpace(b.body) != "" {
			return strings.TrimSpace(b.body), SourceFence
		}
	}
	return text, SourceRaw
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs prepend even when told
// to return only code. Each pattern is anchored to the start and requires a
// colon.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [translated|converted] [Rust] code|translation:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:translated |converted |fixed |corrected )?(?:\w+ )?(?:code|translation|implementation)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] ... code:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the)? (?:translated |converted |fixed |corrected )?(?:\w+ )?(?:code|translation|implementation)\s*:`),
	// "[The] translated code:"
	regexp.MustCompile(`(?i)^(?:the )?(?:translated|converted) (?:\w+ )?code\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: fences ---

type fence struct {
	lang string
	body string
}

// fenceRe matches closed ``` blocks with an optional info string.
var fenceRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+.-]*)[^\\n]*\\n(.*?)```")

func fencedBlocks(text string) []fence {
	var out []fence
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		out = append(out, fence{lang: strings.ToLower(m[1]), body: m[2]})
	}
	return out
}

var langAliases = map[string][]string{
	"rust": {"rust", "rs"},
	"go":   {"go", "golang"},
	"c":    {"c", "h"},
}

func matchesLang(tag, lang string) bool {
	lang = strings.ToLower(lang)
	if tag == lang {
		return true
	}
	for _, alias := range langAliases[lang] {
		if tag == alias {
			return true
		}
	}
	return false
}
