package genome

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Identity returns the content hash of the genome: neuron ids, kinds, biases
// and activations plus every connection with its weight, polarity and gater.
// Tags are excluded. The value is memoized and dropped on every edit.
func (g *Genome) Identity() string {
	if g.identity != "" {
		return g.identity
	}
	var b strings.Builder
	b.Grow(64 * (len(g.neurons) + len(g.connections)))
	b.WriteString("i=")
	b.WriteString(strconv.Itoa(g.inputs))
	b.WriteString("|o=")
	b.WriteString(strconv.Itoa(g.outputs))
	for _, n := range g.neurons {
		b.WriteString("|n:")
		b.WriteString(n.ID)
		b.WriteByte(':')
		b.WriteString(n.Kind.String())
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(n.Bias, 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(n.Activation)
	}
	for _, c := range g.connections {
		b.WriteString("|c:")
		b.WriteString(strconv.Itoa(c.From))
		b.WriteByte('>')
		b.WriteString(strconv.Itoa(c.To))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(c.Weight, 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(c.Polarity.String())
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(c.Gater))
	}
	digest := sha256.Sum256([]byte(b.String()))
	g.identity = hex.EncodeToString(digest[:16])
	return g.identity
}

// InvalidateIdentity drops the memoized hash.
func (g *Genome) InvalidateIdentity() {
	g.identity = ""
}
