package tuning

import (
	"fmt"
	"math"

	"neatforge/internal/genome"
)

// AttemptPolicy decides how many hill-climbing rounds a genome gets.
type AttemptPolicy interface {
	Name() string
	Attempts(baseAttempts int, g *genome.Genome) int
}

type FixedAttemptPolicy struct{}

func (FixedAttemptPolicy) Name() string { return "fixed" }

func (FixedAttemptPolicy) Attempts(baseAttempts int, _ *genome.Genome) int {
	return max(baseAttempts, 0)
}

type TopologyScaledAttemptPolicy struct {
	Scale       float64
	MinAttempts int
	MaxAttempts int
}

func (TopologyScaledAttemptPolicy) Name() string { return "topology_scaled" }

func (p TopologyScaledAttemptPolicy) Attempts(baseAttempts int, g *genome.Genome) int {
	if baseAttempts <= 0 {
		return 0
	}
	scale := p.Scale
	if scale <= 0 {
		scale = 1.0
	}
	attempts := int(float64(baseAttempts) * scale * (1.0 + float64(g.ConnectionCount())/10.0))
	if attempts < p.MinAttempts {
		attempts = p.MinAttempts
	}
	if p.MaxAttempts > 0 && attempts > p.MaxAttempts {
		attempts = p.MaxAttempts
	}
	return attempts
}

// NSizeProportionalAttemptPolicy grows with the non-input neuron count.
type NSizeProportionalAttemptPolicy struct {
	Power float64
}

func (NSizeProportionalAttemptPolicy) Name() string { return "nsize_proportional" }

func (p NSizeProportionalAttemptPolicy) Attempts(baseAttempts int, g *genome.Genome) int {
	if baseAttempts <= 0 {
		return 0
	}
	return baseAttempts + sizeTerm(g.Len()-g.Inputs(), p.Power)
}

// WSizeProportionalAttemptPolicy grows with the connection count.
type WSizeProportionalAttemptPolicy struct {
	Power float64
}

func (WSizeProportionalAttemptPolicy) Name() string { return "wsize_proportional" }

func (p WSizeProportionalAttemptPolicy) Attempts(baseAttempts int, g *genome.Genome) int {
	if baseAttempts <= 0 {
		return 0
	}
	return baseAttempts + sizeTerm(g.ConnectionCount(), p.Power)
}

func sizeTerm(n int, power float64) int {
	if power <= 0 {
		power = 1.0
	}
	return satInt(int(math.Round(math.Pow(float64(n), power))), 0, 100)
}

func AttemptPolicyFromConfig(name string, param float64) (AttemptPolicy, error) {
	switch name {
	case "", "fixed", "const":
		return FixedAttemptPolicy{}, nil
	case "topology_scaled":
		return TopologyScaledAttemptPolicy{Scale: param, MinAttempts: 1}, nil
	case "nsize_proportional":
		return NSizeProportionalAttemptPolicy{Power: param}, nil
	case "wsize_proportional":
		return WSizeProportionalAttemptPolicy{Power: param}, nil
	default:
		return nil, fmt.Errorf("unsupported tune duration policy: %s", name)
	}
}

func satInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
