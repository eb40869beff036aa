// Package responder answers a closed set of canned questions about the test
// table by case-insensitive substring matching.
//
// It is not a natural-language interface. Only the phrases listed in Rules
// are recognized, in that priority order; anything else gets the help text.
// Each call is independent and keeps no conversation state.
package responder

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mkusaka/test-tracker/internal/query"
	"github.com/mkusaka/test-tracker/internal/record"
)

// Intent identifies which canned answer a question maps to.
type Intent int

const (
	IntentHelp Intent = iota
	IntentFailCount
	IntentFailuresByProject
	IntentFailureTypes
	IntentEndurance
)

var intentNames = map[Intent]string{
	IntentHelp:              "help",
	IntentFailCount:         "fail_count",
	IntentFailuresByProject: "failures_by_project",
	IntentFailureTypes:      "failure_types",
	IntentEndurance:         "endurance",
}

func (i Intent) String() string {
	if n, ok := intentNames[i]; ok {
		return n
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// Rule pairs an intent with the substrings that must all appear in the
// folded question.
type Rule struct {
	Intent   Intent
	Contains []string
}

// Rules is evaluated top to bottom; the first match wins.
var Rules = []Rule{
	{Intent: IntentFailCount, Contains: []string{"how many", "fail"}},
	{Intent: IntentFailuresByProject, Contains: []string{"which project", "fail"}},
	{Intent: IntentFailureTypes, Contains: []string{"failure type"}},
	{Intent: IntentEndurance, Contains: []string{"endurance"}},
}

// HelpText is returned for any question no rule recognizes.
const HelpText = "I can help you analyze test data. Try asking:\n" +
	"• 'How many tests failed?'\n" +
	"• 'Which projects have failures?'\n" +
	"• 'Show me failure types'\n" +
	"• 'Analyze endurance tests'"

// SampleQuestions are offered as one-click prompts on the analysis page.
var SampleQuestions = []string{
	"How many tests failed?",
	"Which projects have the most failures?",
	"Show me failure types and their frequency",
	"Analyze endurance test performance",
}

// Answer is the responder output for one question.
type Answer struct {
	Intent Intent `json:"-"`
	Kind   string `json:"intent"`
	Text   string `json:"text"`
}

// Classify maps a question to an intent.
func Classify(question string) Intent {
	folded := cases.Fold().String(question)
	for _, rule := range Rules {
		if containsAll(folded, rule.Contains) {
			return rule.Intent
		}
	}
	return IntentHelp
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// Respond classifies question and renders the answer against t.
func Respond(t record.Table, question string) Answer {
	intent := Classify(question)
	return Answer{Intent: intent, Kind: intent.String(), Text: render(intent, t)}
}

func render(intent Intent, t record.Table) string {
	switch intent {
	case IntentFailCount:
		return fmt.Sprintf("There are %d failed tests in the database.", query.Summarize(t).Fail)
	case IntentFailuresByProject:
		return bulletList("Failed tests by project:", query.FailuresByProject(t), "failures")
	case IntentFailureTypes:
		return bulletList("Failure types:", query.FailureBreakdown(t), "occurrences")
	case IntentEndurance:
		s := query.EnduranceSummary(t)
		return fmt.Sprintf("Endurance Tests Summary:\n• Total: %d\n• Passed: %d\n• Failed: %d\n• Success Rate: %.1f%%",
			s.Total, s.Passed, s.Failed, s.SuccessRate)
	default:
		return HelpText
	}
}

func bulletList(title string, counts []query.Count, unit string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, c := range counts {
		fmt.Fprintf(&b, "• %s: %d %s\n", c.Category, c.Count, unit)
	}
	return b.String()
}
