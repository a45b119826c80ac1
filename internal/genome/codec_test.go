package genome

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"neatforge/internal/model"
)

func TestExportImportPreservesIdentity(t *testing.T) {
	g := newChainGenome(t, "tanh")
	g.SetTag(3, "origin", "bred")
	exported := g.Export()
	back, err := Import(exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if back.Identity() != g.Identity() || back.Neuron(3).Tags["origin"] != "bred" {
		t.Fatal("indexed round trip changed the genome")
	}

	exported.Neurons[3].Tags["origin"] = "changed"
	exported.Connections[0].Weight = 42
	if g.Neuron(3).Tags["origin"] != "bred" || g.Connections()[0].Weight == 42 {
		t.Fatal("export shares memory with the genome")
	}
}

func TestPortableRoundTripImpliesInputs(t *testing.T) {
	g := newChainGenome(t, "identity")
	portable := g.ExportPortable()
	if len(portable.Neurons) != g.Len()-g.Inputs() {
		t.Fatalf("portable form lists %d neurons, want %d", len(portable.Neurons), g.Len()-g.Inputs())
	}
	for _, c := range portable.Connections {
		if c.From == "" || c.To == "" {
			t.Fatalf("connection without endpoint ids: %+v", c)
		}
	}
	back, err := ImportPortable(portable)
	if err != nil {
		t.Fatalf("import portable: %v", err)
	}
	if back.Identity() != g.Identity() {
		t.Fatal("portable round trip changed identity")
	}
}

func TestImportPortableRejectsBadReferences(t *testing.T) {
	g := newChainGenome(t, "tanh")

	unknown := g.ExportPortable()
	unknown.Connections[0].From = "nowhere"
	if _, err := ImportPortable(unknown); !errors.Is(err, ErrUnknownNeuron) {
		t.Fatalf("expected ErrUnknownNeuron, got %v", err)
	}

	duplicate := g.ExportPortable()
	duplicate.Neurons[1].ID = duplicate.Neurons[0].ID
	if _, err := ImportPortable(duplicate); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestImportValidatesWhileAssembleRepairs(t *testing.T) {
	g := newChainGenome(t, "tanh")
	want := g.Identity()
	if err := g.InsertNeuron(4, Neuron{Kind: KindHidden, Activation: "tanh"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	broken := g.Export()

	if _, err := Import(broken); !errors.Is(err, ErrDanglingNeuron) {
		t.Fatalf("expected ErrDanglingNeuron, got %v", err)
	}
	repaired, err := Assemble(broken)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if repaired.Len() != 5 || repaired.Identity() != want {
		t.Fatalf("assemble did not drop the orphan: len=%d", repaired.Len())
	}

	outOfRange := newChainGenome(t, "tanh").Export()
	outOfRange.Connections[0].To = 99
	if _, err := Assemble(outOfRange); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestImportRejectsUnknownKindAndPolarity(t *testing.T) {
	g := newChainGenome(t, "tanh").Export()
	g.Neurons[3].Kind = "sensor"
	if _, err := Import(g); err == nil {
		t.Fatal("expected unknown kind error")
	}
	g = newChainGenome(t, "tanh").Export()
	g.Connections[0].Polarity = "sideways"
	if _, err := Import(g); err == nil {
		t.Fatal("expected unknown polarity error")
	}
}

func TestNegativeZeroBiasSurvivesJSON(t *testing.T) {
	g := newChainGenome(t, "tanh")
	if err := g.SetBias(3, math.Copysign(0, -1)); err != nil {
		t.Fatalf("set bias: %v", err)
	}
	want := g.Identity()

	data, err := json.Marshal(g.ExportPortable())
	if err != nil {
		t.Fatalf("marshal portable: %v", err)
	}
	var portable model.PortableGenome
	if err := json.Unmarshal(data, &portable); err != nil {
		t.Fatalf("unmarshal portable: %v", err)
	}
	back, err := ImportPortable(portable)
	if err != nil {
		t.Fatalf("import portable: %v", err)
	}
	if back.Identity() != want {
		t.Fatalf("portable identity changed: %s vs %s", back.Identity(), want)
	}

	data, err = json.Marshal(g.Export())
	if err != nil {
		t.Fatalf("marshal indexed: %v", err)
	}
	var indexed model.IndexedGenome
	if err := json.Unmarshal(data, &indexed); err != nil {
		t.Fatalf("unmarshal indexed: %v", err)
	}
	back, err = Import(indexed)
	if err != nil {
		t.Fatalf("import indexed: %v", err)
	}
	if back.Identity() != want {
		t.Fatalf("indexed identity changed: %s vs %s", back.Identity(), want)
	}
}
