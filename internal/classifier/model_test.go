package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"classattend/internal/apperr"
)

func TestHolder_UntrainedWithoutModel(t *testing.T) {
	h := NewHolder(NewFileStore(filepath.Join(t.TempDir(), "model.json")))
	_, err := h.Current(context.Background())
	if !errors.Is(err, apperr.ErrUntrained) {
		t.Fatalf("expected ErrUntrained, got %v", err)
	}
}

func TestHolder_ReplaceIsVisibleAndVersioned(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "model.json")
	h := NewHolder(NewFileStore(path))

	m1, err := h.Replace(ctx, []byte("first"), 2)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if m1.Version != 1 {
		t.Errorf("expected version 1, got %d", m1.Version)
	}
	m2, err := h.Replace(ctx, []byte("second"), 3)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if m2.Version != 2 {
		t.Errorf("expected version 2, got %d", m2.Version)
	}

	cur, err := h.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if string(cur.Blob) != "second" || cur.Samples != 3 {
		t.Errorf("unexpected current model %+v", cur)
	}

	// A fresh holder over the same file loads the persisted artifact.
	fresh := NewHolder(NewFileStore(path))
	loaded, err := fresh.Current(ctx)
	if err != nil {
		t.Fatalf("Current on fresh holder: %v", err)
	}
	if loaded.Version != 2 || string(loaded.Blob) != "second" {
		t.Errorf("unexpected loaded model %+v", loaded)
	}
}

func TestHolder_ReplaceRejectsEmptyBlob(t *testing.T) {
	h := NewHolder(NewFileStore(filepath.Join(t.TempDir(), "model.json")))
	if _, err := h.Replace(context.Background(), nil, 0); !errors.Is(err, apperr.ErrCapability) {
		t.Fatalf("expected ErrCapability, got %v", err)
	}
}

func TestHolder_SetInjectsModel(t *testing.T) {
	h := NewHolder(nil)
	h.Set(&Model{Version: 9, Blob: []byte("fixed")})
	m, err := h.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if m.Version != 9 {
		t.Errorf("expected injected version 9, got %d", m.Version)
	}
}

func TestHolder_SeesSaveFromAnotherHolder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "model.json")
	writer := NewHolder(NewFileStore(path))
	reader := NewHolder(NewFileStore(path))

	if _, err := writer.Replace(ctx, []byte("v1"), 1); err != nil {
		t.Fatal(err)
	}
	m, err := reader.Current(ctx)
	if err != nil || m.Version != 1 {
		t.Fatalf("reader Current() = %+v, %v", m, err)
	}

	if _, err := writer.Replace(ctx, []byte("v2"), 2); err != nil {
		t.Fatal(err)
	}
	m, err = reader.Current(ctx)
	if err != nil {
		t.Fatalf("reader Current() after retrain: %v", err)
	}
	if m.Version != 2 || string(m.Blob) != "v2" {
		t.Errorf("expected the retrained model, got %+v", m)
	}
}

func TestHolder_KeepsModelWhenStoreIsEmpty(t *testing.T) {
	h := NewHolder(NewFileStore(filepath.Join(t.TempDir(), "model.json")))
	h.Set(&Model{Version: 4, Blob: []byte("fixed")})
	m, err := h.Current(context.Background())
	if err != nil || m.Version != 4 {
		t.Fatalf("Current() = %+v, %v", m, err)
	}
}

func TestFileStore_Version(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "model.json"))
	if v, err := s.Version(ctx); err != nil || v != 0 {
		t.Fatalf("empty Version() = %d, %v", v, err)
	}
	if _, err := s.Save(ctx, []byte("a"), 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, []byte("b"), 1); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Version(ctx); err != nil || v != 2 {
		t.Fatalf("Version() = %d, %v", v, err)
	}
}

func TestFileStore_SaveOverCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "model.json")
	s := NewFileStore(path)
	if _, err := s.Save(ctx, []byte("a"), 1); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx); err == nil {
		t.Fatal("expected Load to fail on a corrupt file")
	}

	m, err := s.Save(ctx, []byte("b"), 2)
	if err != nil {
		t.Fatalf("Save over corrupt file: %v", err)
	}
	if m.Version != 2 {
		t.Errorf("expected to continue at version 2, got %d", m.Version)
	}
	loaded, err := NewFileStore(path).Load(ctx)
	if err != nil || loaded.Version != 2 || string(loaded.Blob) != "b" {
		t.Errorf("Load() after recovery = %+v, %v", loaded, err)
	}

	// A fresh store with no history starts again at version 1.
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err = NewFileStore(path).Save(ctx, []byte("c"), 1)
	if err != nil || m.Version != 1 {
		t.Errorf("fresh Save over truncated file = %+v, %v", m, err)
	}
}
