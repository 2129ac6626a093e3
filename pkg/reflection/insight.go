// Package reflection analyzes rated chat turns and extracts structured
// insights that feed the curator. The analysis itself is pluggable: a
// heuristic reflector works without any model, an LLM-backed reflector
// produces richer insights. Either way the output is the same strict schema.
package reflection

import (
	"encoding/json"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Insight is the structured output of analyzing one feedback event.
// Ephemeral: consumed by the curator, logged for audit only.
type Insight struct {
	ErrorIdentification string  `json:"error_identification"`
	RootCause           string  `json:"root_cause_analysis"`
	CorrectApproach     string  `json:"correct_approach"`
	KeyInsight          string  `json:"key_insight"`
	Confidence          float64 `json:"confidence"`
}

// IsErrorCase reports whether the insight describes a failure rather than a
// success pattern.
func (in *Insight) IsErrorCase() bool {
	ident := strings.ToLower(in.ErrorIdentification)
	return ident != "" && !strings.Contains(ident, "no error")
}

// Validate checks the schema constraints.
func (in *Insight) Validate() error {
	if strings.TrimSpace(in.KeyInsight) == "" {
		return errors.New(errors.MalformedInsight, "insight missing key_insight")
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return errors.WithFields(
			errors.New(errors.MalformedInsight, "confidence out of range"),
			errors.Fields{"confidence": in.Confidence},
		)
	}
	return nil
}

// ParseInsight decodes model output into an Insight. Any deserialization or
// schema failure is a MalformedInsight error; callers route that to the
// curator's templated fallback rather than scanning text for artifacts.
func ParseInsight(data []byte) (*Insight, error) {
	// Models sometimes wrap JSON in markdown fences.
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var insight Insight
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &insight); err != nil {
		return nil, errors.Wrap(err, errors.MalformedInsight, "parsing insight JSON")
	}
	if err := insight.Validate(); err != nil {
		return nil, err
	}
	return &insight, nil
}
