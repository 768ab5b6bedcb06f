package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	logx "powerbot/pkg/logx"
)

func openTestFileStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	st := openTestFileStore(t, path)

	if _, ok, err := st.Get(ctx, "b", "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}

	if err := st.Put(ctx, "b", "k", []byte(`"v1"`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := st.Get(ctx, "b", "k")
	if err != nil || !ok || string(v) != `"v1"` {
		t.Fatalf("Get: %q ok=%v err=%v", v, ok, err)
	}

	// values survive a reopen
	st2 := openTestFileStore(t, path)
	v, ok, err = st2.Get(ctx, "b", "k")
	if err != nil || !ok || string(v) != `"v1"` {
		t.Fatalf("Get after reopen: %q ok=%v err=%v", v, ok, err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	st := openTestFileStore(t, filepath.Join(t.TempDir(), "state.json"))

	if err := st.Put(ctx, "b", "k", []byte(`1`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Delete(ctx, "b", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "b", "k"); ok {
		t.Fatalf("key still present after Delete")
	}
	// deleting a missing key is not an error
	if err := st.Delete(ctx, "b", "k"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if err := st.Delete(ctx, "nosuch", "k"); err != nil {
		t.Fatalf("Delete missing bucket: %v", err)
	}
}

func TestFileStoreKeysSorted(t *testing.T) {
	ctx := context.Background()
	st := openTestFileStore(t, filepath.Join(t.TempDir(), "state.json"))

	for _, k := range []string{"zeta", "alpha", "mid"} {
		if err := st.Put(ctx, "b", k, []byte(`0`)); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	keys, err := st.Keys(ctx, "b")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if want := []string{"alpha", "mid", "zeta"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}

	keys, err = st.Keys(ctx, "empty")
	if err != nil || keys != nil {
		t.Fatalf("Keys(empty) = %v, %v", keys, err)
	}
}

func TestFileStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(Config{Driver: "file", Path: path}, logx.Nop()); err == nil {
		t.Fatalf("expected error for corrupt snapshot")
	}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", "  NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
