package pattern

import (
	"errors"
	"fmt"

	"dsconnector/pkg/odrl"
)

// ErrUnsupportedPattern reports a synthesis request for a pattern with no
// canonical example, i.e. NOT_RECOGNIZED.
var ErrUnsupportedPattern = errors.New("no example policy for pattern")

// Fixed example literals. These are illustrative content, stable across
// calls, not configuration.
const (
	exampleTitle          = "Example Usage Policy"
	exampleCountLimit     = "5"
	exampleDuration       = "PT4H"
	exampleInstant        = "2020-07-11T00:00:00Z"
	exampleNotifyEndpoint = "https://localhost:8000/api/ids/data"
	examplePIPEndpoint    = "https://localhost:8080/admin/api/resources/"
)

// Synthesize builds the canonical example policy for a pattern. The result
// always classifies back to the requested pattern. Repeated calls produce
// structurally identical policies.
func Synthesize(p Pattern) (odrl.Policy, error) {
	switch p {
	case ProvideAccess:
		return examplePolicy(p, odrl.Rule{
			Kind:   odrl.KindPermission,
			Action: odrl.ActionUse,
		}), nil
	case ProhibitAccess:
		return examplePolicy(p, odrl.Rule{
			Kind:   odrl.KindProhibition,
			Action: odrl.ActionUse,
		}), nil
	case NTimesUsage:
		return examplePolicy(p, odrl.Rule{
			Kind:   odrl.KindPermission,
			Action: odrl.ActionUse,
			Constraints: []odrl.Constraint{{
				Operand:     odrl.OperandCount,
				Operator:    odrl.OperatorLtEq,
				Value:       odrl.Value{Payload: exampleCountLimit, Type: odrl.TypeDouble},
				PIPEndpoint: examplePIPEndpoint,
			}},
		}), nil
	case DurationUsage:
		return examplePolicy(p, odrl.Rule{
			Kind:   odrl.KindPermission,
			Action: odrl.ActionUse,
			Constraints: []odrl.Constraint{{
				Operand:  odrl.OperandElapsedTime,
				Operator: odrl.OperatorShorterEq,
				Value:    odrl.Value{Payload: exampleDuration, Type: odrl.TypeDuration},
			}},
		}), nil
	case UsageDuringInterval:
		return examplePolicy(p, odrl.Rule{
			Kind:        odrl.KindPermission,
			Action:      odrl.ActionUse,
			Constraints: intervalConstraints(),
		}), nil
	case UsageUntilDeletion:
		return examplePolicy(p, odrl.Rule{
			Kind:        odrl.KindPermission,
			Action:      odrl.ActionUse,
			Constraints: intervalConstraints(),
			PostDuties: []odrl.Duty{{
				Action: odrl.ActionDelete,
				Constraints: []odrl.Constraint{{
					Operand:  odrl.OperandPolicyEvaluationTime,
					Operator: odrl.OperatorTemporalEquals,
					Value:    odrl.Value{Payload: exampleInstant, Type: odrl.TypeTimestamp},
				}},
			}},
		}), nil
	case UsageLogging:
		return examplePolicy(p, odrl.Rule{
			Kind:       odrl.KindPermission,
			Action:     odrl.ActionUse,
			PostDuties: []odrl.Duty{{Action: odrl.ActionLog}},
		}), nil
	case UsageNotification:
		return examplePolicy(p, odrl.Rule{
			Kind:   odrl.KindPermission,
			Action: odrl.ActionUse,
			PostDuties: []odrl.Duty{{
				Action: odrl.ActionNotify,
				Constraints: []odrl.Constraint{{
					Operand:  odrl.OperandEndpoint,
					Operator: odrl.OperatorDefinesAs,
					Value:    odrl.Value{Payload: exampleNotifyEndpoint, Type: odrl.TypeAnyURI},
				}},
			}},
		}), nil
	default:
		return odrl.Policy{}, fmt.Errorf("%w: %s", ErrUnsupportedPattern, p)
	}
}

func examplePolicy(p Pattern, rule odrl.Rule) odrl.Policy {
	rule.Title = exampleTitle
	rule.Description = p.slug()
	return odrl.Policy{
		Title: exampleTitle,
		Rules: []odrl.Rule{rule},
	}
}

func intervalConstraints() []odrl.Constraint {
	return []odrl.Constraint{
		{
			Operand:  odrl.OperandPolicyEvaluationTime,
			Operator: odrl.OperatorAfter,
			Value:    odrl.Value{Payload: exampleInstant, Type: odrl.TypeTimestamp},
		},
		{
			Operand:  odrl.OperandPolicyEvaluationTime,
			Operator: odrl.OperatorBefore,
			Value:    odrl.Value{Payload: exampleInstant, Type: odrl.TypeTimestamp},
		},
	}
}
