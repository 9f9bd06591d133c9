package gallery

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// record is the persisted form of a LabeledFace. Descriptors are plain numeric
// arrays so the payload stays portable across runtimes.
type record struct {
	Label       string      `json:"label"`
	Descriptors [][]float32 `json:"descriptors"`
}

// Encode serializes gallery entries, in order, to the JSON gallery format.
func Encode(entries []LabeledFace) ([]byte, error) {
	records := make([]record, len(entries))
	for i, e := range entries {
		descs := make([][]float32, len(e.Signatures))
		for j, s := range e.Signatures {
			descs[j] = s
		}
		records[i] = record{Label: e.Label, Descriptors: descs}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding gallery: %w", err)
	}
	return data, nil
}

// Decode parses the JSON gallery format and validates every record.
// Labels are trimmed; see Validate for the rules.
func Decode(data []byte) ([]LabeledFace, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding gallery: %w", err)
	}

	entries := make([]LabeledFace, len(records))
	for i, r := range records {
		sigs := make([]Signature, len(r.Descriptors))
		for j, d := range r.Descriptors {
			sigs[j] = Signature(d)
		}
		entries[i] = LabeledFace{Label: strings.TrimSpace(r.Label), Signatures: sigs}
	}
	if _, err := Validate(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Validate checks that labels are non-empty and unique, that every entry has at
// least one signature, and that all signatures share one non-zero dimensionality,
// which it returns (0 for an empty set).
func Validate(entries []LabeledFace) (int, error) {
	dim := 0
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Label == "" || e.Label != strings.TrimSpace(e.Label) {
			return 0, fmt.Errorf("entry %d: %w", i, ErrInvalidLabel)
		}
		if _, ok := seen[e.Label]; ok {
			return 0, fmt.Errorf("entry %d (%q): %w", i, e.Label, ErrDuplicateLabel)
		}
		seen[e.Label] = struct{}{}

		if len(e.Signatures) == 0 {
			return 0, fmt.Errorf("entry %q has no descriptors: %w", e.Label, ErrInvalidSignature)
		}
		for _, s := range e.Signatures {
			if len(s) == 0 {
				return 0, fmt.Errorf("entry %q has an empty descriptor: %w", e.Label, ErrInvalidSignature)
			}
			if dim == 0 {
				dim = len(s)
			}
			if len(s) != dim {
				return 0, fmt.Errorf("entry %q: descriptor length %d, expected %d: %w", e.Label, len(s), dim, ErrInvalidSignature)
			}
		}
	}
	return dim, nil
}
