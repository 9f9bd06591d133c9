package gallery

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/face-recognizer/internal/constants"
)

func TestGallery_AddOrUpdate(t *testing.T) {
	ctx := context.Background()
	g, kv := newTestGallery(t)

	if err := g.AddOrUpdate(ctx, "  alice ", sig(1, 0, 0)); err != nil {
		t.Fatalf("AddOrUpdate failed: %v", err)
	}
	if err := g.AddOrUpdate(ctx, "bob", sig(0, 1, 0)); err != nil {
		t.Fatalf("AddOrUpdate failed: %v", err)
	}

	if got := g.List(); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Errorf("List() = %v, want [alice bob]", got)
	}
	if kv.SetCount() != 2 {
		t.Errorf("expected 2 persistence writes, got %d", kv.SetCount())
	}
	if _, ok := kv.Value("test-gallery"); !ok {
		t.Error("expected gallery to be persisted under its key")
	}
}

func TestGallery_AddOrUpdateOverwrites(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGallery(t)

	s1, s2 := sig(1, 0, 0), sig(0, 0, 1)
	if err := g.AddOrUpdate(ctx, "alice", s1); err != nil {
		t.Fatal(err)
	}
	if err := g.AddOrUpdate(ctx, "alice", s2); err != nil {
		t.Fatal(err)
	}

	if g.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", g.Len())
	}
	entry, ok := g.Get("alice")
	if !ok {
		t.Fatal("alice missing")
	}
	if len(entry.Signatures) != 1 {
		t.Fatalf("expected exactly one signature, got %d", len(entry.Signatures))
	}
	if !slices.Equal(entry.Signatures[0], s2) {
		t.Errorf("signature = %v, want %v", entry.Signatures[0], s2)
	}
}

func TestGallery_AddOrUpdateRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		label   string
		sig     Signature
		wantErr error
	}{
		{name: "empty label", label: "", sig: sig(1, 2, 3), wantErr: ErrInvalidLabel},
		{name: "blank label", label: "   \t", sig: sig(1, 2, 3), wantErr: ErrInvalidLabel},
		{name: "empty signature", label: "alice", sig: nil, wantErr: ErrInvalidSignature},
		{name: "dimension mismatch", label: "carol", sig: sig(1, 2), wantErr: ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, kv := newTestGallery(t)
			if err := g.AddOrUpdate(ctx, "seed", sig(0, 0, 0)); err != nil {
				t.Fatal(err)
			}
			writes := kv.SetCount()

			err := g.AddOrUpdate(ctx, tt.label, tt.sig)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if got := g.List(); !slices.Equal(got, []string{"seed"}) {
				t.Errorf("gallery changed: %v", got)
			}
			if kv.SetCount() != writes {
				t.Error("rejected input must not be persisted")
			}
		})
	}
}

func TestGallery_FixedDimension(t *testing.T) {
	g := New(nil, Options{Threshold: 0.6, SignatureDim: 4, Logger: zerolog.Nop()})

	if err := g.AddOrUpdate(context.Background(), "alice", sig(1, 2, 3)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
	if err := g.AddOrUpdate(context.Background(), "alice", sig(1, 2, 3, 4)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGallery_LearnedDimensionResetsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGallery(t)

	if err := g.AddOrUpdate(ctx, "alice", sig(1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	g.Remove(ctx, "alice")

	if err := g.AddOrUpdate(ctx, "bob", sig(1, 2)); err != nil {
		t.Errorf("expected a new dimension to be accepted on an empty gallery, got %v", err)
	}
}

func TestGallery_Remove(t *testing.T) {
	ctx := context.Background()
	g, kv := newTestGallery(t)

	for _, label := range []string{"alice", "bob", "carol"} {
		if err := g.AddOrUpdate(ctx, label, sig(1, 1)); err != nil {
			t.Fatal(err)
		}
	}
	writes := kv.SetCount()

	if !g.Remove(ctx, "bob") {
		t.Error("expected bob to be removed")
	}
	if got := g.List(); !slices.Equal(got, []string{"alice", "carol"}) {
		t.Errorf("List() = %v, want [alice carol]", got)
	}
	if kv.SetCount() != writes+1 {
		t.Errorf("expected one write for the removal, got %d", kv.SetCount()-writes)
	}

	if g.Remove(ctx, "bob") {
		t.Error("removing an absent label must report false")
	}
	if kv.SetCount() != writes+1 {
		t.Error("removing an absent label must not write")
	}
}

func TestGallery_ListReflectsOperations(t *testing.T) {
	ctx := context.Background()

	type op struct {
		remove bool
		label  string
	}
	tests := []struct {
		name string
		ops  []op
		want []string
	}{
		{
			name: "adds only",
			ops:  []op{{label: "a"}, {label: "b"}, {label: "c"}},
			want: []string{"a", "b", "c"},
		},
		{
			name: "repeated adds",
			ops:  []op{{label: "a"}, {label: "a"}, {label: "b"}, {label: "a"}},
			want: []string{"a", "b"},
		},
		{
			name: "add remove add",
			ops:  []op{{label: "a"}, {label: "b"}, {remove: true, label: "a"}, {label: "a"}},
			want: []string{"b", "a"},
		},
		{
			name: "remove absent",
			ops:  []op{{remove: true, label: "x"}, {label: "a"}, {remove: true, label: "x"}},
			want: []string{"a"},
		},
		{
			name: "remove everything",
			ops:  []op{{label: "a"}, {label: "b"}, {remove: true, label: "b"}, {remove: true, label: "a"}},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGallery(t)
			for _, o := range tt.ops {
				if o.remove {
					g.Remove(ctx, o.label)
					continue
				}
				if err := g.AddOrUpdate(ctx, o.label, sig(0.5, 0.5)); err != nil {
					t.Fatal(err)
				}
			}
			if got := g.List(); !slices.Equal(got, tt.want) {
				t.Errorf("List() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGallery_ListIsACopy(t *testing.T) {
	g, _ := newTestGallery(t)
	if err := g.AddOrUpdate(context.Background(), "alice", sig(1)); err != nil {
		t.Fatal(err)
	}

	labels := g.List()
	labels[0] = "mallory"

	if got := g.List(); got[0] != "alice" {
		t.Errorf("internal state leaked through List(): %v", got)
	}
}

func TestGallery_StoresSignatureCopy(t *testing.T) {
	g, _ := newTestGallery(t)
	s := sig(1, 2, 3)
	if err := g.AddOrUpdate(context.Background(), "alice", s); err != nil {
		t.Fatal(err)
	}
	s[0] = 99

	entry, _ := g.Get("alice")
	if entry.Signatures[0][0] != 1 {
		t.Error("gallery must keep its own copy of the signature")
	}
}

func TestGallery_MatcherFollowsMutations(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGallery(t)

	if g.Matcher() != nil {
		t.Fatal("expected no matcher for an empty gallery")
	}
	if m := g.Matcher().FindBestMatch(sig(1, 0)); m.Label != constants.UnknownLabel || m.Known {
		t.Errorf("expected unknown from the empty gallery, got %+v", m)
	}

	if err := g.AddOrUpdate(ctx, "alice", sig(1, 0)); err != nil {
		t.Fatal(err)
	}
	if m := g.Matcher().FindBestMatch(sig(1, 0)); m.Label != "alice" {
		t.Errorf("expected alice, got %+v", m)
	}

	if err := g.AddOrUpdate(ctx, "alice", sig(0, 1)); err != nil {
		t.Fatal(err)
	}
	if m := g.Matcher().FindBestMatch(sig(1, 0)); m.Known {
		t.Errorf("expected the old signature to be forgotten, got %+v", m)
	}

	g.Remove(ctx, "alice")
	if g.Matcher() != nil {
		t.Error("expected no matcher after removing the last label")
	}
}

func TestGallery_PersistenceFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	g, kv := newTestGallery(t)
	kv.SetError = errors.New("disk full")

	if err := g.AddOrUpdate(ctx, "alice", sig(1, 0)); err != nil {
		t.Fatalf("persistence failure must not surface: %v", err)
	}
	if got := g.List(); !slices.Equal(got, []string{"alice"}) {
		t.Errorf("List() = %v, want [alice]", got)
	}
	if m := g.Matcher().FindBestMatch(sig(1, 0)); m.Label != "alice" {
		t.Errorf("expected the matcher to include alice, got %+v", m)
	}
	if !g.Remove(ctx, "alice") {
		t.Error("expected removal to succeed despite persistence failure")
	}
}

func TestGallery_PersistsWithCanceledContext(t *testing.T) {
	g, kv := newTestGallery(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.AddOrUpdate(ctx, "alice", sig(1, 0)); err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.Value("test-gallery"); !ok {
		t.Error("expected the write to happen even though the caller went away")
	}
}

func TestGallery_HydrateRoundTrip(t *testing.T) {
	entries := []LabeledFace{
		{Label: "alice", Signatures: []Signature{sig(0.1, 0.2, 0.3)}},
		{Label: "bob", Signatures: []Signature{sig(0.4, 0.5, 0.6), sig(0.7, 0.8, 0.9)}},
		{Label: "carol", Signatures: []Signature{sig(-1, 0, 1)}},
	}

	g, kv := newTestGallery(t)
	if err := g.Hydrate(entries); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if kv.SetCount() != 0 {
		t.Error("hydration must not persist")
	}

	want, err := Encode(entries)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Encode(g.Entries())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", got, want)
	}

	if m := g.Matcher().FindBestMatch(sig(0.7, 0.8, 0.9)); m.Label != "bob" {
		t.Errorf("expected bob's second signature to match, got %+v", m)
	}
}

func TestGallery_HydrateRejectsInvalid(t *testing.T) {
	g, _ := newTestGallery(t)
	if err := g.AddOrUpdate(context.Background(), "alice", sig(1, 2)); err != nil {
		t.Fatal(err)
	}

	err := g.Hydrate([]LabeledFace{{Label: "bob"}})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
	if got := g.List(); !slices.Equal(got, []string{"alice"}) {
		t.Errorf("failed hydration must keep the previous state, got %v", got)
	}
}

func TestGallery_Load(t *testing.T) {
	ctx := context.Background()
	g, kv := newTestGallery(t)

	data, err := Encode([]LabeledFace{
		{Label: "alice", Signatures: []Signature{sig(1, 0)}},
		{Label: "bob", Signatures: []Signature{sig(0, 1)}},
	})
	if err != nil {
		t.Fatal(err)
	}
	kv.Put("test-gallery", data)

	if err := g.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := g.List(); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Errorf("List() = %v, want [alice bob]", got)
	}
}

func TestGallery_LoadMissingKey(t *testing.T) {
	g, _ := newTestGallery(t)
	if err := g.Load(context.Background()); err != nil {
		t.Fatalf("missing key must be an empty gallery, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty gallery, got %d labels", g.Len())
	}
}

func TestGallery_LoadCorrupt(t *testing.T) {
	g, kv := newTestGallery(t)
	kv.Put("test-gallery", []byte(`{"not": "a list"}`))

	if err := g.Load(context.Background()); err == nil {
		t.Error("expected an error for a corrupt gallery")
	}
}
