package nn

import "math"

const defaultSaturationLimit = 1000.0

const (
	ActivationIdentity    = "identity"
	ActivationConditional = "if"
)

// Saturation clamps values to [-1000, 1000].
func Saturation(value float64) float64 {
	return SaturationWithSpread(value, defaultSaturationLimit)
}

// SaturationWithSpread clamps values to the symmetric range [-spread, spread].
func SaturationWithSpread(value, spread float64) float64 {
	if spread < 0 {
		spread = -spread
	}
	if math.IsNaN(value) {
		return 0
	}
	if value > spread {
		return spread
	}
	if value < -spread {
		return -spread
	}
	return value
}

// BuiltinActivations returns the default catalogue in a stable order.
func BuiltinActivations() []Activation {
	return []Activation{
		{Name: ActivationIdentity, Func: func(x float64) float64 { return x }, Linear: true},
		{Name: "logistic", Func: logistic},
		{Name: "tanh", Func: math.Tanh},
		{Name: "relu", Func: func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return x
		}},
		{Name: "step", Func: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		}},
		{Name: "softsign", Func: func(x float64) float64 { return x / (1 + math.Abs(x)) }},
		{Name: "sinusoid", Func: math.Sin},
		{Name: "gaussian", Func: gaussianActivation},
		{Name: "bent_identity", Func: func(x float64) float64 { return (math.Sqrt(x*x+1)-1)/2 + x }},
		{Name: "bipolar", Func: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return -1
		}},
		{Name: "bipolar_sigmoid", Func: func(x float64) float64 { return 2/(1+math.Exp(-x)) - 1 }},
		{Name: "hard_tanh", Func: func(x float64) float64 { return math.Max(-1, math.Min(1, x)) }},
		{Name: "absolute", Func: math.Abs},
		{Name: "inverse", Func: func(x float64) float64 { return 1 - x }},
		{Name: "selu", Func: selu},
		{Name: ActivationConditional, Conditional: true},
	}
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func gaussianActivation(value float64) float64 {
	v := value
	if v > 10 {
		v = 10
	}
	if v < -10 {
		v = -10
	}
	return math.Exp(-v * v)
}

func selu(x float64) float64 {
	const (
		alpha = 1.6732632423543772
		scale = 1.0507009873554805
	)
	if x > 0 {
		return scale * x
	}
	return scale * alpha * (math.Exp(x) - 1)
}
