package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// CurrentVersion returns the record version written by this build.
func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// IndexedGenome is the position-addressed genome flavor. Every neuron is
// listed, inputs included, in array order.
type IndexedGenome struct {
	VersionedRecord
	Inputs      int                 `json:"inputs"`
	Outputs     int                 `json:"outputs"`
	Neurons     []IndexedNeuron     `json:"neurons"`
	Connections []IndexedConnection `json:"connections"`
}

type IndexedNeuron struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Bias       float64           `json:"bias"`
	Activation string            `json:"activation,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type IndexedConnection struct {
	From     int     `json:"from"`
	To       int     `json:"to"`
	Weight   float64 `json:"weight"`
	Polarity string  `json:"polarity,omitempty"`
	Gater    *int    `json:"gater,omitempty"`
}

// Clone returns a deep copy, so a payload handed to another goroutine shares
// no memory with the sender.
func (g IndexedGenome) Clone() IndexedGenome {
	out := g
	out.Neurons = make([]IndexedNeuron, len(g.Neurons))
	for i, n := range g.Neurons {
		if n.Tags != nil {
			tags := make(map[string]string, len(n.Tags))
			for k, v := range n.Tags {
				tags[k] = v
			}
			n.Tags = tags
		}
		out.Neurons[i] = n
	}
	out.Connections = make([]IndexedConnection, len(g.Connections))
	for i, c := range g.Connections {
		if c.Gater != nil {
			gater := *c.Gater
			c.Gater = &gater
		}
		out.Connections[i] = c
	}
	return out
}

// PortableGenome is the identity-addressed genome flavor. Input neurons are
// implied by Inputs and referenced as input-<k>.
type PortableGenome struct {
	VersionedRecord
	Inputs      int                  `json:"inputs"`
	Outputs     int                  `json:"outputs"`
	Neurons     []PortableNeuron     `json:"neurons"`
	Connections []PortableConnection `json:"connections"`
}

type PortableNeuron struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Bias       float64           `json:"bias"`
	Activation string            `json:"activation,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type PortableConnection struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Weight   float64 `json:"weight"`
	Polarity string  `json:"polarity,omitempty"`
	Gater    string  `json:"gater,omitempty"`
}

type GenerationDiagnostics struct {
	VersionedRecord
	Generation       int     `json:"generation"`
	BestFitness      float64 `json:"best_fitness"`
	MeanFitness      float64 `json:"mean_fitness"`
	MinFitness       float64 `json:"min_fitness"`
	PopulationSize   int     `json:"population_size"`
	SpeciesCount     int     `json:"species_count"`
	LargestSpecies   int     `json:"largest_species"`
	DistinctGenomes  int     `json:"distinct_genomes"`
	OffspringBred    int     `json:"offspring_bred"`
	DedupCollisions  int     `json:"dedup_collisions"`
	DedupRebred      int     `json:"dedup_rebred"`
	DedupMutated     int     `json:"dedup_mutated"`
	DedupDropped     int     `json:"dedup_dropped"`
	TrainingResults  int     `json:"training_results"`
	InjectedFineTune int     `json:"injected_fine_tune"`
	BestNeurons      int     `json:"best_neurons"`
	BestConnections  int     `json:"best_connections"`
}

// TopGenomeRecord persists the champion of a run at a given generation.
type TopGenomeRecord struct {
	VersionedRecord
	RunID      string         `json:"run_id"`
	Generation int            `json:"generation"`
	Identity   string         `json:"identity"`
	Fitness    float64        `json:"fitness"`
	Genome     PortableGenome `json:"genome"`
}
