package pattern

import "dsconnector/pkg/odrl"

// Classify returns the single best-matching pattern for a policy, or
// NotRecognized. Only the first rule is inspected; the catalog describes
// single-rule documents and multi-rule offers have no defined shape.
//
// Checks run in fixed priority order and the first match wins. The order is
// load-bearing: the deletion-duty shape shares its two interval constraints
// with the bare interval shape and must be tested first. Classify never
// fails; any policy it cannot interpret is NotRecognized.
func Classify(policy odrl.Policy) Pattern {
	if len(policy.Rules) == 0 {
		return NotRecognized
	}
	rule := policy.Rules[0]
	switch {
	case isProhibitAccess(rule):
		return ProhibitAccess
	case isNTimesUsage(rule):
		return NTimesUsage
	case isDurationUsage(rule):
		return DurationUsage
	case isUsageUntilDeletion(rule):
		return UsageUntilDeletion
	case isUsageDuringInterval(rule):
		return UsageDuringInterval
	case isUsageLogging(rule):
		return UsageLogging
	case isUsageNotification(rule):
		return UsageNotification
	case isProvideAccess(rule):
		return ProvideAccess
	default:
		return NotRecognized
	}
}

func isProvideAccess(rule odrl.Rule) bool {
	return rule.Kind == odrl.KindPermission &&
		len(rule.Constraints) == 0 &&
		len(rule.PostDuties) == 0
}

func isProhibitAccess(rule odrl.Rule) bool {
	return rule.Kind == odrl.KindProhibition &&
		len(rule.Constraints) == 0 &&
		len(rule.PostDuties) == 0
}

func isNTimesUsage(rule odrl.Rule) bool {
	if rule.Kind != odrl.KindPermission || len(rule.Constraints) != 1 {
		return false
	}
	c := rule.Constraints[0]
	return c.Operand == odrl.OperandCount && c.Operator == odrl.OperatorLtEq
}

func isDurationUsage(rule odrl.Rule) bool {
	if rule.Kind != odrl.KindPermission || len(rule.Constraints) != 1 {
		return false
	}
	c := rule.Constraints[0]
	return c.Operand == odrl.OperandElapsedTime && c.Operator == odrl.OperatorShorterEq
}

// hasIntervalConstraints reports whether the rule carries exactly two
// evaluation-time constraints, one AFTER and one BEFORE, in either order.
func hasIntervalConstraints(rule odrl.Rule) bool {
	if len(rule.Constraints) != 2 {
		return false
	}
	var after, before int
	for _, c := range rule.Constraints {
		if c.Operand != odrl.OperandPolicyEvaluationTime {
			return false
		}
		switch c.Operator {
		case odrl.OperatorAfter:
			after++
		case odrl.OperatorBefore:
			before++
		default:
			return false
		}
	}
	return after == 1 && before == 1
}

func isUsageDuringInterval(rule odrl.Rule) bool {
	return rule.Kind == odrl.KindPermission &&
		hasIntervalConstraints(rule) &&
		len(rule.PostDuties) == 0
}

func isUsageUntilDeletion(rule odrl.Rule) bool {
	if rule.Kind != odrl.KindPermission || !hasIntervalConstraints(rule) {
		return false
	}
	if len(rule.PostDuties) == 0 {
		return false
	}
	duty := rule.PostDuties[0]
	if duty.Action != odrl.ActionDelete || len(duty.Constraints) != 1 {
		return false
	}
	c := duty.Constraints[0]
	return c.Operand == odrl.OperandPolicyEvaluationTime && c.Operator == odrl.OperatorTemporalEquals
}

func isUsageLogging(rule odrl.Rule) bool {
	if rule.Kind != odrl.KindPermission || len(rule.Constraints) != 0 || len(rule.PostDuties) != 1 {
		return false
	}
	duty := rule.PostDuties[0]
	return duty.Action == odrl.ActionLog && len(duty.Constraints) == 0
}

func isUsageNotification(rule odrl.Rule) bool {
	if rule.Kind != odrl.KindPermission || len(rule.Constraints) != 0 || len(rule.PostDuties) != 1 {
		return false
	}
	duty := rule.PostDuties[0]
	if duty.Action != odrl.ActionNotify || len(duty.Constraints) != 1 {
		return false
	}
	c := duty.Constraints[0]
	return c.Operand == odrl.OperandEndpoint && c.Operator == odrl.OperatorDefinesAs
}
