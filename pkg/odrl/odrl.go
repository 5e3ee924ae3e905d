package odrl

// RuleKind distinguishes permissions from prohibitions.
type RuleKind string

const (
	KindPermission  RuleKind = "PERMISSION"
	KindProhibition RuleKind = "PROHIBITION"
)

// Action names the operation a rule or duty covers. Values outside the
// listed constants are carried verbatim and treated as unrecognized.
type Action string

const (
	ActionUse    Action = "USE"
	ActionDelete Action = "DELETE"
	ActionLog    Action = "LOG"
	ActionNotify Action = "NOTIFY"
)

// Operand is the left-hand side of a constraint.
type Operand string

const (
	OperandCount                Operand = "COUNT"
	OperandElapsedTime          Operand = "ELAPSED_TIME"
	OperandPolicyEvaluationTime Operand = "POLICY_EVALUATION_TIME"
	OperandEndpoint             Operand = "ENDPOINT"
)

// Operator relates a constraint operand to its right-hand value.
type Operator string

const (
	OperatorLtEq           Operator = "LTEQ"
	OperatorShorterEq      Operator = "SHORTER_EQ"
	OperatorAfter          Operator = "AFTER"
	OperatorBefore         Operator = "BEFORE"
	OperatorTemporalEquals Operator = "TEMPORAL_EQUALS"
	OperatorDefinesAs      Operator = "DEFINES_AS"
)

// ValueType tags the datatype of a constraint's right-hand literal.
type ValueType string

const (
	TypeDouble    ValueType = "xsd:double"
	TypeDuration  ValueType = "xsd:duration"
	TypeTimestamp ValueType = "xsd:dateTimeStamp"
	TypeAnyURI    ValueType = "xsd:anyURI"
)

// Value is a typed literal, only ever used as a constraint's right-hand side.
type Value struct {
	Payload string    `json:"@value"`
	Type    ValueType `json:"@type,omitempty"`
}

// Constraint limits when a rule or duty applies. No operand/operator
// compatibility checks happen here; a mismatched pairing simply never
// matches a known pattern downstream.
type Constraint struct {
	Operand     Operand  `json:"leftOperand"`
	Operator    Operator `json:"operator"`
	Value       Value    `json:"rightOperand"`
	PIPEndpoint string   `json:"pipEndpoint,omitempty"`
}

// Duty is an obligation attached to a rule, triggered after the permitted
// action.
type Duty struct {
	Action      Action       `json:"action"`
	Constraints []Constraint `json:"constraint,omitempty"`
}

// Rule is a single permission or prohibition statement covering one action.
type Rule struct {
	Kind        RuleKind     `json:"-"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Action      Action       `json:"action"`
	Constraints []Constraint `json:"constraint,omitempty"`
	PostDuties  []Duty       `json:"postDuty,omitempty"`
}

// Policy is the in-memory tree for one usage-control document. It is built
// fresh per request and never mutated after construction; consumers only
// read it or build new ones.
type Policy struct {
	Title string
	Rules []Rule
}
