package engine

import "github.com/orchd-dev/orchd/internal/flow"

// EvalCondition evaluates a step condition against terminal step results.
// A reference to a step without a terminal result evaluates to false.
// An empty condition is true. The clause grammar lives in the flow package
// so definitions are checked at load time.
func EvalCondition(condition string, results map[string]*StepResult) (bool, error) {
	clauses, err := flow.ParseCondition(condition)
	if err != nil {
		return false, err
	}

	for _, clause := range clauses {
		res, ok := results[clause.StepID]
		if !ok || !res.Status.Terminal() {
			return false, nil
		}
		match := res.Status == StepStatus(clause.Status)
		if clause.Negate {
			match = !match
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}
