package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"alterego/db"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStore_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
				t.Fatalf("Get(missing) = %v, %v", ok, err)
			}
			if err := s.Put(ctx, "k", []byte("v1")); err != nil {
				t.Fatal(err)
			}
			if err := s.Put(ctx, "k", []byte("v2")); err != nil {
				t.Fatal(err)
			}
			v, ok, err := s.Get(ctx, "k")
			if err != nil || !ok || string(v) != "v2" {
				t.Errorf("Get(k) = %q, %v, %v", v, ok, err)
			}
			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := s.Get(ctx, "k"); ok {
				t.Error("Get after Delete found key")
			}
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			type payload struct {
				N    int      `json:"n"`
				Tags []string `json:"tags"`
			}
			var out payload
			if ok, err := GetJSON(ctx, s, "p", &out); ok || err != nil {
				t.Fatalf("GetJSON(missing) = %v, %v", ok, err)
			}
			if err := PutJSON(ctx, s, "p", payload{N: 3, Tags: []string{"a"}}); err != nil {
				t.Fatal(err)
			}
			ok, err := GetJSON(ctx, s, "p", &out)
			if err != nil || !ok || out.N != 3 || len(out.Tags) != 1 {
				t.Errorf("GetJSON() = %+v, %v, %v", out, ok, err)
			}

			if err := s.Put(ctx, "bad", []byte("{not json")); err != nil {
				t.Fatal(err)
			}
			if ok, err := GetJSON(ctx, s, "bad", &out); ok || err == nil {
				t.Errorf("GetJSON(corrupt) = %v, %v; want error", ok, err)
			}
		})
	}
}

func TestMemoryStore_FailPut(t *testing.T) {
	m := NewMemoryStore()
	boom := errors.New("disk full")
	m.SetFailPut(boom)
	if err := m.Put(context.Background(), "k", []byte("v")); !errors.Is(err, boom) {
		t.Errorf("Put() error = %v, want %v", err, boom)
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	buf := []byte("abc")
	m.Put(ctx, "k", buf)
	buf[0] = 'X'
	v, _, _ := m.Get(ctx, "k")
	if string(v) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", v)
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, KeyCredits, []byte("12")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	database, err := db.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	shared := NewSQLiteStore(database)
	v, ok, err := shared.Get(ctx, KeyCredits)
	if err != nil || !ok || string(v) != "12" {
		t.Errorf("Get() after reopen = %q, %v, %v", v, ok, err)
	}
	if err := shared.Close(); err != nil {
		t.Fatal(err)
	}
	if err := database.Ping(ctx); err != nil {
		t.Error("Close() on borrowed database closed it")
	}
}
