package checkpoint

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_SetGet_RoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.Set(ctx, "session_a", []byte(`{"turns":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(ctx, "session_a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"turns":1}` {
		t.Errorf("got %q", got)
	}
}

func Test_Set_ReplacesExistingBlob(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.Set(ctx, "session_a", []byte("v1")); err != nil {
		t.Fatalf("set v1: %v", err)
	}
	if err := s.Set(ctx, "session_a", []byte("v2")); err != nil {
		t.Fatalf("set v2: %v", err)
	}

	got, err := s.Get(ctx, "session_a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("got %q, want v2", got)
	}
}

func Test_Get_MissingKeyIsNotAnError(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Get(t.Context(), "never_written")
	if err != nil {
		t.Fatalf("get missing key: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil blob for missing key, got %q", got)
	}
}

func Test_Remove(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.Set(ctx, "session_a", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Remove(ctx, "session_a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err := s.Get(ctx, "session_a")
	if err != nil {
		t.Fatalf("get after remove: %v", err)
	}
	if got != nil {
		t.Errorf("expected key gone, got %q", got)
	}

	// Removing a missing key is not an error.
	if err := s.Remove(ctx, "session_a"); err != nil {
		t.Errorf("remove missing key: %v", err)
	}
}

func Test_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := t.Context()

	if err := s.Set(ctx, "session_a", []byte("a")); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := s.Set(ctx, "session_b", []byte("b")); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if err := s.Remove(ctx, "session_a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}

	got, err := s.Get(ctx, "session_b")
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if string(got) != "b" {
		t.Errorf("session_b affected by removing session_a: %q", got)
	}
}
