package prompt

import "strings"

// EstimateTokens approximates the token count of s at four bytes per token.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Split cuts prompt into line-bounded parts of at most maxTokens estimated
// tokens each. A single line longer than the budget becomes its own part.
// Each part after the first is prefixed with a continuation note.
func Split(prompt string, maxTokens int) []string {
	if maxTokens <= 0 || EstimateTokens(prompt) <= maxTokens {
		return []string{prompt}
	}

	var parts []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(prompt, "\n") {
		if line == "" {
			continue
		}
		if cur.Len() > 0 && EstimateTokens(cur.String()+line) > maxTokens {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}

	for i := 1; i < len(parts); i++ {
		parts[i] = "// Continuation of the previous part; translate only the code below.\n" + parts[i]
	}
	return parts
}
