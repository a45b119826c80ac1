// Package fitness provides supervised datasets and the default batch
// evaluator that scores genomes by negative mean squared error.
package fitness

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"neatforge/internal/model"
	"neatforge/internal/nn"
)

type Sample struct {
	Inputs  []float64
	Targets []float64
}

type Dataset struct {
	Name    string
	Inputs  int
	Outputs int
	Samples []Sample
}

var ErrEmptyDataset = errors.New("dataset has no samples")

// XOR is the two-input exclusive-or truth table.
func XOR() Dataset {
	return Dataset{
		Name:    "xor",
		Inputs:  2,
		Outputs: 1,
		Samples: []Sample{
			{Inputs: []float64{0, 0}, Targets: []float64{0}},
			{Inputs: []float64{0, 1}, Targets: []float64{1}},
			{Inputs: []float64{1, 0}, Targets: []float64{1}},
			{Inputs: []float64{1, 1}, Targets: []float64{0}},
		},
	}
}

// LoadCSV reads rows of inputs followed by outputs. A first row that does
// not parse as numbers is treated as a header.
func LoadCSV(path string, inputs, outputs int) (Dataset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Dataset{}, fmt.Errorf("dataset csv path is required")
	}
	if inputs <= 0 || outputs <= 0 {
		return Dataset{}, fmt.Errorf("dataset csv needs positive input and output widths")
	}
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset csv %s: %w", path, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, inputs, outputs)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	ds.Name = path
	return ds, nil
}

func ReadCSV(r io.Reader, inputs, outputs int) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = inputs + outputs
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	ds := Dataset{Name: "csv", Inputs: inputs, Outputs: outputs}
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("read dataset csv row %d: %w", row+1, err)
		}
		row++
		values, err := parseRow(record)
		if err != nil {
			if row == 1 {
				continue
			}
			return Dataset{}, fmt.Errorf("parse dataset csv row %d: %w", row, err)
		}
		ds.Samples = append(ds.Samples, Sample{Inputs: values[:inputs], Targets: values[inputs:]})
	}
	if len(ds.Samples) == 0 {
		return Dataset{}, ErrEmptyDataset
	}
	return ds, nil
}

func parseRow(record []string) ([]float64, error) {
	values := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// DatasetByName resolves a configured dataset. path is only used by "csv".
func DatasetByName(name, path string, inputs, outputs int) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "xor":
		return XOR(), nil
	case "csv":
		return LoadCSV(path, inputs, outputs)
	default:
		return Dataset{}, fmt.Errorf("unknown dataset: %s", name)
	}
}

// MeanSquaredError runs every sample through a fresh network state and
// averages the squared output error.
func (d Dataset) MeanSquaredError(registry *nn.Registry, g model.IndexedGenome) (float64, error) {
	if len(d.Samples) == 0 {
		return 0, ErrEmptyDataset
	}
	if g.Inputs != d.Inputs || g.Outputs != d.Outputs {
		return 0, fmt.Errorf("genome shape %dx%d does not fit dataset %s (%dx%d)", g.Inputs, g.Outputs, d.Name, d.Inputs, d.Outputs)
	}
	network, err := nn.NewNetwork(registry, g)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, s := range d.Samples {
		network.Reset()
		out, err := network.Step(s.Inputs)
		if err != nil {
			return 0, err
		}
		for k, want := range s.Targets {
			diff := out[k] - want
			sum += diff * diff
		}
	}
	return sum / float64(len(d.Samples)*d.Outputs), nil
}
