package flow

import (
	"fmt"
	"regexp"
	"strings"
)

// Conditions are conjunctions of status comparisons over prior results,
// e.g. "results.draft.status == completed && results.review.status != failed".
var clausePattern = regexp.MustCompile(
	`^results\.([a-z0-9][a-z0-9_-]*)\.status\s*(==|!=)\s*(completed|failed|skipped)$`)

// ConditionClause is one parsed status comparison of a step condition.
type ConditionClause struct {
	StepID string
	Negate bool
	Status string
}

// ParseCondition splits a condition into its clauses, rejecting anything
// outside the clause grammar. An empty condition parses to no clauses.
func ParseCondition(condition string) ([]ConditionClause, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return nil, nil
	}

	parts := strings.Split(condition, "&&")
	clauses := make([]ConditionClause, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		m := clausePattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid condition clause %q", part)
		}
		clauses = append(clauses, ConditionClause{
			StepID: m[1],
			Negate: m[2] == "!=",
			Status: m[3],
		})
	}
	return clauses, nil
}
