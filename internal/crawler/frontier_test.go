package crawler

import (
	"reflect"
	"testing"
)

func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("push dedups across all sets", func(t *testing.T) {
		t.Parallel()
		f := NewFrontier()
		if !f.Push("a") || f.Push("a") {
			t.Fatal("second push of a queued url must be ignored")
		}
		f.NextChunk(1)
		if f.Push("a") {
			t.Error("in-flight url must not be queued again")
		}
		f.MarkProcessed("a")
		if f.Push("a") {
			t.Error("processed url must never re-enter toVisit")
		}
		if !f.IsProcessed("a") {
			t.Error("expected a to be processed")
		}
	})

	t.Run("chunks drain in insertion order", func(t *testing.T) {
		t.Parallel()
		f := NewFrontier()
		for _, u := range []string{"1", "2", "3", "4", "5"} {
			f.Push(u)
		}
		if got := f.NextChunk(2); !reflect.DeepEqual(got, []string{"1", "2"}) {
			t.Errorf("first chunk = %v", got)
		}
		if got := f.NextChunk(10); !reflect.DeepEqual(got, []string{"3", "4", "5"}) {
			t.Errorf("second chunk = %v", got)
		}
		stats := f.Stats()
		if stats.Queued != 0 || stats.InFlight != 5 || stats.Processed != 0 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("sets stay disjoint", func(t *testing.T) {
		t.Parallel()
		f := NewFrontier()
		f.Push("a")
		f.Push("b")
		f.Push("c")
		f.NextChunk(2)
		f.MarkProcessed("a")

		stats := f.Stats()
		if stats.Queued != 1 || stats.InFlight != 1 || stats.Processed != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}
		if stats.Seen() != 3 {
			t.Errorf("expected 3 seen, got %d", stats.Seen())
		}
		if f.MarkProcessed("c") {
			t.Error("a queued url cannot be marked processed")
		}
	})

	t.Run("empty once everything is processed", func(t *testing.T) {
		t.Parallel()
		f := NewFrontier()
		if !f.Empty() {
			t.Error("new frontier must be empty")
		}
		f.Push("a")
		f.NextChunk(1)
		if f.Empty() {
			t.Error("frontier with in-flight url is not empty")
		}
		f.MarkProcessed("a")
		if !f.Empty() {
			t.Error("expected empty frontier")
		}
	})
}
