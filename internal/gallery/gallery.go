package gallery

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/metrics"
)

// Persister loads and saves the whole gallery. SignatureStore implements it.
type Persister interface {
	Load(ctx context.Context) ([]LabeledFace, error)
	Save(ctx context.Context, entries []LabeledFace) error
}

// Options configures a Gallery.
type Options struct {
	// Threshold is the matcher distance threshold
	Threshold float64
	// SignatureDim fixes the signature length; 0 adopts the length of the first signature
	SignatureDim int
	Logger       zerolog.Logger
}

// Gallery is the in-memory registry of labeled faces.
//
// Mutations are serialized by writeMu and persisted after the new state and its
// matcher have been published together under mu, so readers never observe a
// gallery whose matcher is out of date. The in-memory state is authoritative: a
// failed write is logged and the mutation stands.
type Gallery struct {
	writeMu sync.Mutex

	mu       sync.RWMutex
	order    []string
	entries  map[string]LabeledFace
	matcher  *Matcher
	dim      int
	fixedDim bool

	threshold float64
	store     Persister // nil keeps the gallery in memory only
	log       zerolog.Logger
}

// New creates an empty gallery persisted through store (which may be nil).
func New(store Persister, opts Options) *Gallery {
	return &Gallery{
		entries:   make(map[string]LabeledFace),
		dim:       opts.SignatureDim,
		fixedDim:  opts.SignatureDim > 0,
		threshold: opts.Threshold,
		store:     store,
		log:       opts.Logger,
	}
}

// AddOrUpdate binds sig to label. An existing label has its signatures replaced
// by [sig]; a new label is appended after the existing ones.
func (g *Gallery) AddOrUpdate(ctx context.Context, label string, sig Signature) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrInvalidLabel
	}
	if len(sig) == 0 {
		return fmt.Errorf("empty signature: %w", ErrInvalidSignature)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	if g.dim != 0 && len(sig) != g.dim {
		g.mu.Unlock()
		return fmt.Errorf("signature length %d, expected %d: %w", len(sig), g.dim, ErrInvalidSignature)
	}
	_, existed := g.entries[label]
	if !existed {
		g.order = append(g.order, label)
	}
	g.entries[label] = LabeledFace{Label: label, Signatures: []Signature{sig.Clone()}}
	g.dim = len(sig)
	snapshot := g.rebuildLocked()
	g.mu.Unlock()

	g.log.Info().Str("label", label).Bool("replaced", existed).Int("labels", len(snapshot)).Msg("face stored")
	g.persist(ctx, snapshot)
	return nil
}

// Remove deletes label from the gallery. Removing an absent label is a no-op
// and reports false.
func (g *Gallery) Remove(ctx context.Context, label string) bool {
	label = strings.TrimSpace(label)

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	if _, ok := g.entries[label]; !ok {
		g.mu.Unlock()
		return false
	}
	delete(g.entries, label)
	g.order = slices.DeleteFunc(g.order, func(l string) bool { return l == label })
	if len(g.order) == 0 && !g.fixedDim {
		g.dim = 0
	}
	snapshot := g.rebuildLocked()
	g.mu.Unlock()

	g.log.Info().Str("label", label).Int("labels", len(snapshot)).Msg("face removed")
	g.persist(ctx, snapshot)
	return true
}

// Hydrate replaces the whole gallery with entries, rebuilding the matcher once.
// It does not persist: hydration restores what the store already holds.
func (g *Gallery) Hydrate(entries []LabeledFace) error {
	dim, err := Validate(entries)
	if err != nil {
		return err
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fixedDim && dim != 0 && dim != g.dim {
		return fmt.Errorf("stored signatures have length %d, expected %d: %w", dim, g.dim, ErrInvalidSignature)
	}

	g.order = make([]string, 0, len(entries))
	g.entries = make(map[string]LabeledFace, len(entries))
	for _, e := range entries {
		g.order = append(g.order, e.Label)
		g.entries[e.Label] = e.Clone()
	}
	if !g.fixedDim {
		g.dim = dim
	}
	g.rebuildLocked()
	return nil
}

// Load hydrates the gallery from its store.
func (g *Gallery) Load(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	entries, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	if err := g.Hydrate(entries); err != nil {
		return fmt.Errorf("hydrating gallery: %w", err)
	}
	g.log.Info().Int("labels", len(entries)).Msg("gallery loaded")
	return nil
}

// List returns the labels in insertion order.
func (g *Gallery) List() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Len returns the number of labels.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Get returns a copy of the entry for label.
func (g *Gallery) Get(label string) (LabeledFace, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[label]
	if !ok {
		return LabeledFace{}, false
	}
	return e.Clone(), true
}

// Entries returns a deep copy of every entry in insertion order.
func (g *Gallery) Entries() []LabeledFace {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

// Matcher returns the current matcher, or nil when the gallery is empty.
func (g *Gallery) Matcher() *Matcher {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.matcher
}

func (g *Gallery) snapshotLocked() []LabeledFace {
	out := make([]LabeledFace, len(g.order))
	for i, label := range g.order {
		out[i] = g.entries[label].Clone()
	}
	return out
}

// rebuildLocked replaces the matcher from the current state and returns the
// snapshot it was built from. Must be called with mu held for writing.
func (g *Gallery) rebuildLocked() []LabeledFace {
	snapshot := g.snapshotLocked()
	g.matcher = NewMatcher(snapshot, g.threshold)
	metrics.GalleryLabels.Set(float64(len(snapshot)))
	return snapshot
}

// persist writes snapshot to the store. The write is not tied to the caller's
// cancellation: a mutation that happened must also be saved.
func (g *Gallery) persist(ctx context.Context, snapshot []LabeledFace) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(context.WithoutCancel(ctx), snapshot); err != nil {
		metrics.PersistErrors.Inc()
		g.log.Error().Err(err).Int("labels", len(snapshot)).Msg("failed to persist gallery, keeping in-memory state")
	}
}
