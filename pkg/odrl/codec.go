package odrl

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse wraps every failure to decode wire text into a Policy.
var ErrParse = errors.New("policy parse error")

const documentType = "ContractOffer"

// document is the wire shape of a usage-control contract offer. Permissions
// and prohibitions travel in separate arrays; in-memory rule order is
// permissions first, which preserves document order for single-rule offers.
type document struct {
	Type         string `json:"@type,omitempty"`
	Title        string `json:"title,omitempty"`
	Permissions  []Rule `json:"permission,omitempty"`
	Prohibitions []Rule `json:"prohibition,omitempty"`
}

// Parse decodes wire text into a Policy. Unrecognized action, operand and
// operator tokens are kept as-is so that classification stays total; only
// text that cannot be decoded into the rule tree at all is an error.
func Parse(raw []byte) (Policy, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	policy := Policy{Title: doc.Title}
	for _, rule := range doc.Permissions {
		rule.Kind = KindPermission
		policy.Rules = append(policy.Rules, rule)
	}
	for _, rule := range doc.Prohibitions {
		rule.Kind = KindProhibition
		policy.Rules = append(policy.Rules, rule)
	}
	return policy, nil
}

// Serialize encodes a Policy into the same wire format Parse accepts.
// Output is deterministic for structurally identical policies.
func Serialize(policy Policy) ([]byte, error) {
	doc := document{
		Type:  documentType,
		Title: policy.Title,
	}
	for _, rule := range policy.Rules {
		switch rule.Kind {
		case KindProhibition:
			doc.Prohibitions = append(doc.Prohibitions, rule)
		case KindPermission:
			doc.Permissions = append(doc.Permissions, rule)
		default:
			return nil, fmt.Errorf("serialize: rule kind %q", rule.Kind)
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}
