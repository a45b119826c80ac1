package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"neatforge/internal/model"
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeTopGenome(r model.TopGenomeRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTopGenome(data []byte) (model.TopGenomeRecord, error) {
	var record model.TopGenomeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.TopGenomeRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.TopGenomeRecord{}, err
	}
	if err := checkVersion(record.Genome.VersionedRecord); err != nil {
		return model.TopGenomeRecord{}, fmt.Errorf("genome: %w", err)
	}
	return record, nil
}

func EncodeGenerationDiagnostics(d model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(d)
}

func DecodeGenerationDiagnostics(data []byte) (model.GenerationDiagnostics, error) {
	var diagnostics model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return model.GenerationDiagnostics{}, err
	}
	if err := checkVersion(diagnostics.VersionedRecord); err != nil {
		return model.GenerationDiagnostics{}, err
	}
	return diagnostics, nil
}

// EncodeScore stores a score as its big-endian IEEE 754 bits.
func EncodeScore(score float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(score))
	return buf
}

func DecodeScore(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("score payload has %d bytes, want 8", len(data))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != model.CurrentSchemaVersion || v.CodecVersion != model.CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
