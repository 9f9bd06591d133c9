// Package gallery owns the labeled-face registry: the label → signatures map,
// the matcher derived from it, and its persisted form.
package gallery

import (
	"errors"
	"math"
	"slices"
)

// Common errors.
var (
	ErrInvalidLabel     = errors.New("label must not be empty")
	ErrInvalidSignature = errors.New("invalid face signature")
	ErrDuplicateLabel   = errors.New("duplicate label")
)

// Signature is a face descriptor produced by the face engine.
// Typically 128 floats for face-api style models.
type Signature []float32

// Clone returns an independent copy of the signature.
func (s Signature) Clone() Signature {
	return slices.Clone(s)
}

// LabeledFace is a gallery entry: a label and the signatures captured for it.
type LabeledFace struct {
	Label      string
	Signatures []Signature
}

// Clone returns a deep copy of the entry.
func (f LabeledFace) Clone() LabeledFace {
	sigs := make([]Signature, len(f.Signatures))
	for i, s := range f.Signatures {
		sigs[i] = s.Clone()
	}
	return LabeledFace{Label: f.Label, Signatures: sigs}
}

// EuclideanDistance computes the Euclidean distance between two signatures.
// Returns +Inf for signatures of different or zero length.
func EuclideanDistance(a, b Signature) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
