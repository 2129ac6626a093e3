package curator

import (
	"strings"
)

// GeneralSection is the section for insights no keyword rule claims.
const GeneralSection = "General Strategies"

// Specialized sections used by the positive/negative feedback paths.
const (
	AntiPatternsSection    = "Anti-Patterns"
	SuccessPatternsSection = "Success Patterns"
)

// sectionRule pairs a section label with the keyword stems that route
// content into it. Stems rather than full words so inflections match
// ("calculating" hits "calculat").
type sectionRule struct {
	section  string
	keywords []string
}

// sectionRules is evaluated in order; the first rule with a matching keyword
// wins. A lookup table, not a classifier: deterministic and testable.
var sectionRules = []sectionRule{
	{"Explanation Strategies", []string{"explain", "definition", "what is", "describ"}},
	{"Calculation Strategies", []string{"calculat", "math", "comput", "solve"}},
	{"Search Strategies", []string{"search", "find", "look up", "research"}},
	{"Time Management", []string{"time", "date", "schedule"}},
	{"User Interaction", []string{"user", "personal", "individual"}},
	{"Error Prevention", []string{"error", "mistake", "wrong", "incorrect"}},
	{"Response Formatting", []string{"format", "structur", "organiz", "bullet"}},
}

// DetermineSection routes insight text to a section by first-match keyword
// lookup, defaulting to GeneralSection.
func DetermineSection(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range sectionRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.section
			}
		}
	}
	return GeneralSection
}
