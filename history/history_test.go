package history

import (
	"context"
	"errors"
	"testing"

	"alterego/models"
	"alterego/store"
)

func session(ts int64, caption string) models.HistorySession {
	return models.HistorySession{
		SourceImage: "data:image/png;base64,AAAA",
		Images:      map[string]models.GeneratedImage{caption: models.DoneImage(caption, "data:image/png;base64,QUJD")},
		Timestamp:   ts,
	}
}

func TestAppend_NewestFirstAndTruncates(t *testing.T) {
	ctx := context.Background()
	h := New(ctx, store.NewMemoryStore(), nil)

	for i := int64(1); i <= 7; i++ {
		if _, err := h.Append(ctx, session(i*1000, "s")); err != nil {
			t.Fatal(err)
		}
	}
	list := h.List()
	if len(list) != MaxEntries {
		t.Fatalf("len(List()) = %d, want %d", len(list), MaxEntries)
	}
	for i, want := range []int64{7000, 6000, 5000, 4000, 3000} {
		if list[i].Timestamp != want {
			t.Errorf("List()[%d].Timestamp = %d, want %d", i, list[i].Timestamp, want)
		}
	}
	if latest, ok := h.Latest(); !ok || latest.Timestamp != 7000 {
		t.Errorf("Latest() = %d, %v", latest.Timestamp, ok)
	}
}

func TestAppend_StrictlyIncreasingTimestamps(t *testing.T) {
	ctx := context.Background()
	h := New(ctx, store.NewMemoryStore(), nil)

	first, _ := h.Append(ctx, session(500, "a"))
	second, _ := h.Append(ctx, session(500, "b"))
	third, _ := h.Append(ctx, session(100, "c"))
	if !(first.Timestamp < second.Timestamp && second.Timestamp < third.Timestamp) {
		t.Errorf("timestamps %d, %d, %d not strictly increasing", first.Timestamp, second.Timestamp, third.Timestamp)
	}
}

func TestHistory_Persistence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	h := New(ctx, s, nil)
	h.Append(ctx, session(1, "1950s"))
	h.Append(ctx, session(2, "Future"))

	again := New(ctx, s, nil)
	got, ok := again.Get(1)
	if !ok {
		t.Fatal("Get(1) after rehydrate not found")
	}
	if img := got.Images["1950s"]; img.Status() != models.StatusDone {
		t.Errorf("rehydrated image status = %v", img.Status())
	}
	if again.Len() != 2 {
		t.Errorf("Len() = %d, want 2", again.Len())
	}

	if err := again.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if New(ctx, s, nil).Len() != 0 {
		t.Error("Clear() did not persist")
	}
}

func TestHistory_CorruptDataStartsEmpty(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	s.Put(ctx, store.KeyHistory, []byte(`[{"uploadedImage":"x","generatedImages":{"a":{"status":"done","caption":"a"}},"timestamp":1}]`))
	if n := New(ctx, s, nil).Len(); n != 0 {
		t.Errorf("Len() = %d, want 0 for invalid entries", n)
	}
}

func TestHistory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	h := New(ctx, store.NewMemoryStore(), nil)
	h.Append(ctx, session(1, "a"))

	list := h.List()
	list[0].Images["a"] = models.FailedImage("a", "mutated")
	if img := h.List()[0].Images["a"]; img.Status() != models.StatusDone {
		t.Error("List() exposed internal map")
	}
}

func TestAppend_PersistFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	h := New(ctx, s, nil)
	boom := errors.New("disk full")
	s.SetFailPut(boom)

	if _, err := h.Append(ctx, session(1, "a")); !errors.Is(err, boom) {
		t.Fatalf("Append() error = %v, want %v", err, boom)
	}
	if h.Len() != 1 {
		t.Error("in-memory entry dropped after persist failure")
	}
}
