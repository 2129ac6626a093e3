package curator

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/XiaoConstantine/ace-go/pkg/reflection"
)

// minContentLength is the shortest content accepted before falling back to a
// templated sentence.
const minContentLength = 10

// artifactTokens mark raw machine output that leaked into insight text:
// embedded object syntax or our own schema field names echoed back by the
// model. Content carrying any of these is discarded and re-synthesized from
// the structured fields.
var artifactTokens = []string{
	"{", "}",
	"error_identification",
	"root_cause_analysis",
	"correct_approach",
	"key_insight",
}

// formatContent normalizes raw insight text into clean bullet content.
// Applied before any ADD or UPDATE persists.
func formatContent(content string, insight *reflection.Insight) string {
	content = norm.NFC.String(content)

	formatted := content
	if containsArtifacts(content) {
		if insight.IsErrorCase() {
			formatted = fmt.Sprintf("When %s, avoid this approach and instead: %s",
				strings.ToLower(insight.ErrorIdentification), insight.CorrectApproach)
		} else {
			formatted = fmt.Sprintf("When answering similar questions, use this approach: %s",
				insight.CorrectApproach)
		}
	} else {
		formatted = strings.TrimSpace(formatted)
	}

	formatted = numberLines(formatted)

	if len(formatted) < minContentLength {
		formatted = fallbackContent(insight)
	}

	return formatted
}

func containsArtifacts(content string) bool {
	for _, token := range artifactTokens {
		if strings.Contains(content, token) {
			return true
		}
	}
	return false
}

// numberLines rewrites multi-line content as a numbered list unless it
// already is one.
func numberLines(content string) string {
	if !strings.Contains(content, "\n") {
		return strings.TrimSpace(content)
	}
	for i := 1; i <= 5; i++ {
		if strings.HasPrefix(content, fmt.Sprintf("%d.", i)) {
			return strings.TrimSpace(content)
		}
	}

	var numbered []string
	n := 1
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		numbered = append(numbered, fmt.Sprintf("%d. %s", n, line))
		n++
	}
	return strings.Join(numbered, "\n")
}

// fallbackContent synthesizes a sentence from the structured fields when the
// formatted text came out empty or too short.
func fallbackContent(insight *reflection.Insight) string {
	if insight.IsErrorCase() {
		return fmt.Sprintf("When %s, use this approach: %s",
			strings.ToLower(insight.ErrorIdentification), insight.CorrectApproach)
	}
	return "Success pattern: " + insight.CorrectApproach
}
