package genome

import "fmt"

type Kind uint8

const (
	KindInput Kind = iota
	KindHidden
	KindOutput
	KindConstant
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindHidden:
		return "hidden"
	case KindOutput:
		return "output"
	case KindConstant:
		return "constant"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "input":
		return KindInput, nil
	case "hidden":
		return KindHidden, nil
	case "output":
		return KindOutput, nil
	case "constant":
		return KindConstant, nil
	default:
		return 0, fmt.Errorf("unknown neuron kind: %q", s)
	}
}

// Polarity tags a connection feeding a conditional (IF) neuron.
type Polarity uint8

const (
	PolarityNone Polarity = iota
	PolarityPositive
	PolarityNegative
	PolarityCondition
)

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "positive"
	case PolarityNegative:
		return "negative"
	case PolarityCondition:
		return "condition"
	default:
		return ""
	}
}

func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "":
		return PolarityNone, nil
	case "positive":
		return PolarityPositive, nil
	case "negative":
		return PolarityNegative, nil
	case "condition":
		return PolarityCondition, nil
	default:
		return 0, fmt.Errorf("unknown polarity: %q", s)
	}
}

// NoGater marks an ungated connection.
const NoGater = -1

// Neuron is one node of the genome. ID is the lineage identity: assigned at
// creation and carried unchanged through clone, crossover and import/export.
type Neuron struct {
	ID         string
	Kind       Kind
	Bias       float64
	Activation string
	Index      int
	Tags       map[string]string
}

type Connection struct {
	From     int
	To       int
	Weight   float64
	Polarity Polarity
	Gater    int
}

func (c Connection) less(from, to int) bool {
	if c.From != from {
		return c.From < from
	}
	return c.To < to
}

// IsSelf reports a self-loop.
func (c Connection) IsSelf() bool { return c.From == c.To }

// IsBack reports a recurrent edge pointing to an earlier position.
func (c Connection) IsBack() bool { return c.To < c.From }

// IsForward reports a feed-forward edge.
func (c Connection) IsForward() bool { return c.From < c.To }

func inputID(k int) string {
	return fmt.Sprintf("input-%d", k)
}
