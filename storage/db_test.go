package storage

import (
	"errors"
	"testing"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	key := []byte("alpha")
	value := []byte("one")
	if err := db.Put(key, value); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "one" {
		t.Fatalf("get = %q, want %q", got, "one")
	}

	has, err := db.Has(key)
	if err != nil || !has {
		t.Fatalf("has = %v, err=%v", has, err)
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	key := []byte("alpha")
	value := []byte("one")
	if err := db.Put(key, value); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Mutating the caller's slice must not leak into the store.
	value[0] = 'X'
	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "one" {
		t.Fatalf("stored value mutated: %q", got)
	}

	// Mutating a returned slice must not corrupt later reads.
	got[0] = 'Y'
	again, err := db.Get(key)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if string(again) != "one" {
		t.Fatalf("returned slice aliases the store: %q", again)
	}
}
