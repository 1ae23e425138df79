package sqlite

import (
	"path/filepath"
	"testing"
)

func TestStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")

	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Set("token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("sidebar-collapsed", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("token", "def"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_ = store.Close()

	// Values survive reopening.
	store, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	v, ok, err := store.Get("token")
	if err != nil || !ok || v != "def" {
		t.Errorf("Get(token) = %q, %v, %v; want def", v, ok, err)
	}
	all, err := store.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["sidebar-collapsed"] != "true" {
		t.Errorf("All = %v", all)
	}
}

func TestStore_MissingAndDelete(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "nested", "state.sqlite"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Get("user"); ok || err != nil {
		t.Errorf("missing key: ok=%v err=%v", ok, err)
	}
	_ = store.Set("user", `{"id":1}`)
	if err := store.Delete("user"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get("user"); ok {
		t.Error("key still present after Delete")
	}
	if err := store.Delete("user"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
