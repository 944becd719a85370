// Package analysis renders functional behavior-analysis prompts and sends
// them through the completion client.
package analysis

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// NotSpecified is rendered for optional fields left blank.
const NotSpecified = "None specified"

var (
	ErrMissingBehavior    = errors.New("behavior must be provided")
	ErrMissingAntecedent  = errors.New("antecedent must be provided")
	ErrMissingConsequence = errors.New("consequence must be provided")
)

// Fields holds the observations the analysis is based on.
type Fields struct {
	Behavior         string `json:"behavior"`
	Antecedent       string `json:"antecedent"`
	Consequence      string `json:"consequence"`
	PreviousAttempts string `json:"previous_attempts,omitempty"`
	EmotionsThoughts string `json:"emotions_thoughts,omitempty"`
}

// Validate checks that the required observations are present.
func (f Fields) Validate() error {
	var errs []error
	if strings.TrimSpace(f.Behavior) == "" {
		errs = append(errs, ErrMissingBehavior)
	}
	if strings.TrimSpace(f.Antecedent) == "" {
		errs = append(errs, ErrMissingAntecedent)
	}
	if strings.TrimSpace(f.Consequence) == "" {
		errs = append(errs, ErrMissingConsequence)
	}
	return errors.Join(errs...)
}

var promptTemplate = template.Must(template.New("analysis").Parse(`Functional behavioral analysis based on radical behaviorism and intervention technique suggestions

BEHAVIORAL DATA:
- Current behavior you want to analyze: "{{.Behavior}}"
- Context or environment in which the behavior occurs: "{{.Antecedent}}"
- Immediate consequences of the analyzed behavior (what happens right after the behavior): "{{.Consequence}}"
- Previous attempts to change the analyzed behavior: "{{.PreviousAttempts}}"
- Emotional or cognitive context (if applicable): "{{.EmotionsThoughts}}"

INSTRUCTIONS:
1. First, perform a functional analysis based on radical behaviorism, considering:
   * The context/environment in which the behavior occurs and the immediate consequence of the behavior
   * Frequency and intensity of the behavior
   * Other contexts/environments where the same behavior occurs
   * Short and long-term consequences
   * Positive and negative reinforcement, and any punishment
   * Behavioral excesses and deficits (e.g., over- or under-reaction, lack of certain skills)
   * Emotional and cognitive factors influencing the behavior
   * Impact on daily functioning
   * Potential barriers to change
   * Strengths from previous attempts

2. Based on this analysis, suggest 3-4 practical habits. For each habit, provide:
   - Habit name: short and clear title
   - Description: brief explanation of the habit
   - Implementation: detailed step-by-step execution
   - Scientific basis: reference or evidence supporting this habit
   - Link to analysis: explain how the habit addresses specific behavioral patterns

3. After suggesting the habits, provide a habit review process for the user to track progress over time. Suggest how to review their progress after 2 weeks and adjust if necessary.

RESPONSE FORMAT (please use this format and the exact keywords - DO NOT CHANGE THE WORD 'Habits:'):
GENERAL:
[Behavioral analysis, more than 3 paragraphs]

Habits:
1. **[Habit name]**
   - **Description:** [brief description]
   - **Implementation:** [detailed steps]
   - **Scientific Basis:** [reference or evidence]
   - **Link to analysis:** [explanation of how this habit addresses the specific behavior]

[Repeat format for each suggested habit]`))

// BuildPrompt renders the analysis prompt. Blank optional fields become
// NotSpecified; required fields are rendered as given.
func BuildPrompt(f Fields) string {
	data := f
	data.PreviousAttempts = orNotSpecified(f.PreviousAttempts)
	data.EmotionsThoughts = orNotSpecified(f.EmotionsThoughts)

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		// The template only reads string fields of a struct value.
		panic(fmt.Sprintf("render analysis prompt: %v", err))
	}
	return b.String()
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotSpecified
	}
	return s
}
