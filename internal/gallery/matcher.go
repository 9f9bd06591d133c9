package gallery

import (
	"cmp"
	"math"
	"math/rand"
	"slices"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-recognizer/internal/constants"
)

// Match is the outcome of labeling one signature.
type Match struct {
	Label    string  // best-match label, or constants.UnknownLabel
	Distance float64 // distance to the closest reference; +Inf when there is no matcher
	Known    bool    // Distance is within the matcher threshold
}

// reference is one gallery signature, flattened for searching.
type reference struct {
	label     string
	signature Signature
}

// Matcher labels signatures by nearest reference. It is built once from a
// gallery snapshot and never mutated; the gallery replaces it on every change.
//
// A nil *Matcher is the "no matcher" state of an empty gallery and labels every
// signature as unknown.
type Matcher struct {
	refs      []reference
	threshold float64
	graph     *hnsw.Graph[int] // nil below constants.HNSWMinReferences
}

// NewMatcher builds a matcher over the given entries. It returns nil when there
// is nothing to match against.
func NewMatcher(entries []LabeledFace, threshold float64) *Matcher {
	var refs []reference
	for _, e := range entries {
		for _, s := range e.Signatures {
			refs = append(refs, reference{label: e.Label, signature: s.Clone()})
		}
	}
	if len(refs) == 0 {
		return nil
	}

	m := &Matcher{refs: refs, threshold: threshold}
	if len(refs) >= constants.HNSWMinReferences {
		m.graph = buildGraph(refs)
	}
	return m
}

// buildGraph indexes references by position.
func buildGraph(refs []reference) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	g.Rng = rand.New(rand.NewSource(constants.HNSWSeed)) //nolint:gosec // not security sensitive

	for i, r := range refs {
		g.Add(hnsw.MakeNode(i, []float32(r.signature)))
	}
	return g
}

// Threshold returns the maximum distance accepted as a match.
func (m *Matcher) Threshold() float64 {
	if m == nil {
		return 0
	}
	return m.threshold
}

// Size returns the number of reference signatures.
func (m *Matcher) Size() int {
	if m == nil {
		return 0
	}
	return len(m.refs)
}

// FindBestMatch returns the label of the closest reference if it lies within
// the threshold, otherwise the unknown label with the smallest distance found.
// Ties go to the reference inserted first.
//
// The result is always that of an exhaustive scan. On large galleries the
// graph only supplies a starting bound that lets the scan abandon references
// early.
func (m *Matcher) FindBestMatch(sig Signature) Match {
	if m == nil {
		return Match{Label: constants.UnknownLabel, Distance: math.Inf(1)}
	}

	best, bestDist := m.seed(sig)
	for i, r := range m.refs {
		d, ok := boundedDistance(sig, r.signature, bestDist)
		if !ok {
			continue
		}
		if d < bestDist || (d == bestDist && i < best) {
			best, bestDist = i, d
		}
	}

	if best < 0 || bestDist > m.threshold {
		return Match{Label: constants.UnknownLabel, Distance: bestDist}
	}
	return Match{Label: m.refs[best].label, Distance: bestDist, Known: true}
}

// seed returns the closest of the graph's shortlisted references, or -1 and
// +Inf when there is no graph to ask.
func (m *Matcher) seed(sig Signature) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	if m.graph == nil || len(sig) != len(m.refs[0].signature) {
		return best, bestDist
	}

	nodes := m.graph.Search([]float32(sig), constants.HNSWCandidates)
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Key
	}
	slices.SortFunc(ids, cmp.Compare[int])
	for _, i := range ids {
		if d := EuclideanDistance(sig, m.refs[i].signature); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// boundedDistance is EuclideanDistance that gives up once the partial sum
// clearly exceeds limit. The slack keeps references whose distance rounds to
// limit, so ties are still resolved by insertion order.
func boundedDistance(a, b Signature, limit float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1), true
	}

	bound := math.Inf(1)
	if !math.IsInf(limit, 1) {
		bound = limit * limit * (1 + 1e-9)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
		if sum > bound {
			return 0, false
		}
	}
	return math.Sqrt(sum), true
}
