package progress

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/watchtrack/internal/interval"
	"github.com/example/watchtrack/internal/kv"
)

func newTestStore() (*Store, *kv.Memory) {
	mem := kv.NewMemory()
	return NewStore(mem, nil), mem
}

func TestInitializeVideo(t *testing.T) {
	s, _ := newTestStore()

	s.InitializeVideo("v1", 120)
	rec, ok := s.GetProgress("v1")
	if !ok {
		t.Fatal("expected record after initialize")
	}
	if rec.TotalDuration != 120 || rec.TotalWatchedTime != 0 || rec.PercentWatched != 0 || rec.LastPosition != 0 {
		t.Fatalf("unexpected initial record: %+v", rec)
	}
	if cur, ok := s.CurrentVideo(); !ok || cur != "v1" {
		t.Fatalf("expected current video v1, got %q (ok=%v)", cur, ok)
	}
}

func TestInitializeVideo_PreservesExistingRecord(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 5)
	s.InitializeVideo("v2", 30)

	// Re-initialize with a different duration: history and duration survive,
	// only the current pointer moves.
	s.InitializeVideo("v1", 999)
	rec, _ := s.GetProgress("v1")
	if rec.TotalDuration != 10 {
		t.Fatalf("expected duration 10 preserved, got %v", rec.TotalDuration)
	}
	if rec.TotalWatchedTime != 5 {
		t.Fatalf("expected watched time 5 preserved, got %v", rec.TotalWatchedTime)
	}
	if cur, _ := s.CurrentVideo(); cur != "v1" {
		t.Fatalf("expected current video repointed to v1, got %q", cur)
	}
}

func TestAddInterval_MergesAndDerives(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 5)
	s.AddInterval(ctx, "v1", 3, 8)

	rec, _ := s.GetProgress("v1")
	want := []interval.Interval{{Start: 0, End: 8}}
	if !reflect.DeepEqual(rec.Intervals, want) {
		t.Fatalf("expected %v, got %v", want, rec.Intervals)
	}
	if rec.TotalWatchedTime != 8 {
		t.Fatalf("expected watched time 8, got %v", rec.TotalWatchedTime)
	}
	if rec.PercentWatched != 80 {
		t.Fatalf("expected 80%%, got %v", rec.PercentWatched)
	}
}

func TestAddInterval_AdjacentReachesFull(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 5)
	s.AddInterval(ctx, "v1", 5, 10)

	rec, _ := s.GetProgress("v1")
	if !reflect.DeepEqual(rec.Intervals, []interval.Interval{{Start: 0, End: 10}}) {
		t.Fatalf("expected single full interval, got %v", rec.Intervals)
	}
	if rec.PercentWatched != 100 {
		t.Fatalf("expected 100%%, got %v", rec.PercentWatched)
	}
}

func TestAddInterval_ReplayClampsAt100(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 10)
	s.AddInterval(ctx, "v1", 0, 10)

	rec, _ := s.GetProgress("v1")
	if rec.PercentWatched != 100 {
		t.Fatalf("expected clamp at 100, got %v", rec.PercentWatched)
	}
	if rec.TotalWatchedTime != 10 {
		t.Fatalf("replay must not double-count, got %v", rec.TotalWatchedTime)
	}
}

func TestAddInterval_Invalid(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 5, 5)
	s.AddInterval(ctx, "v1", 7, 2)

	rec, _ := s.GetProgress("v1")
	if len(rec.Intervals) != 0 || rec.TotalWatchedTime != 0 {
		t.Fatalf("degenerate intervals must be dropped, got %+v", rec)
	}
}

func TestAddInterval_UnknownVideo(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.AddInterval(ctx, "nope", 0, 5)
	if _, ok := s.GetProgress("nope"); ok {
		t.Fatal("mutation before initialize must not create a record")
	}
}

func TestAddInterval_ZeroDurationSkipsPercent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 0)
	s.AddInterval(ctx, "v1", 0, 5)

	rec, _ := s.GetProgress("v1")
	if rec.TotalWatchedTime != 5 {
		t.Fatalf("expected watched time 5, got %v", rec.TotalWatchedTime)
	}
	if rec.PercentWatched != 0 {
		t.Fatalf("percent must stay 0 when duration is unknown, got %v", rec.PercentWatched)
	}
}

func TestSetLastPosition(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.SetLastPosition(ctx, "nope", 42) // unknown id: no-op

	s.InitializeVideo("v1", 100)
	s.SetLastPosition(ctx, "v1", 42.5)
	rec, _ := s.GetProgress("v1")
	if rec.LastPosition != 42.5 {
		t.Fatalf("expected last position 42.5, got %v", rec.LastPosition)
	}
	if rec.TotalWatchedTime != 0 {
		t.Fatal("last position must not affect coverage")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 2, 7)
	s.SetLastPosition(ctx, "v1", 7)
	s.InitializeVideo("v2", 300)
	s.AddInterval(ctx, "v2", 0, 30)

	loaded := NewStore(mem, nil)
	loaded.Load(ctx)

	for _, id := range []string{"v1", "v2"} {
		want, _ := s.GetProgress(id)
		got, ok := loaded.GetProgress(id)
		if !ok {
			t.Fatalf("expected %s after load", id)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch for %s: %+v vs %+v", id, got, want)
		}
	}
}

func TestLoad_FailOpen(t *testing.T) {
	mem := kv.NewMemory()
	ctx := context.Background()

	// Malformed payload: keep whatever is already in memory.
	_ = mem.Set(ctx, DefaultStorageKey, "{not json")
	s := NewStore(mem, nil)
	s.InitializeVideo("v1", 10)
	s.Load(ctx)
	if _, ok := s.GetProgress("v1"); !ok {
		t.Fatal("load of malformed payload must not drop in-memory state")
	}

	// Absent key: same.
	s2 := NewStore(kv.NewMemory(), nil)
	s2.Load(ctx)
	if got := s2.ListProgress(); len(got) != 0 {
		t.Fatalf("expected cold start, got %v", got)
	}
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("kv down")
}
func (brokenKV) Set(context.Context, string, string) error {
	return errors.New("kv down")
}

func TestMutations_SurviveKVFailure(t *testing.T) {
	s := NewStore(brokenKV{}, nil)
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 4)
	rec, ok := s.GetProgress("v1")
	if !ok || rec.TotalWatchedTime != 4 {
		t.Fatalf("in-memory state must survive persistence failure: %+v (ok=%v)", rec, ok)
	}
	s.Load(ctx)
	if _, ok := s.GetProgress("v1"); !ok {
		t.Fatal("failed load must keep in-memory state")
	}
}

func TestObserver_NotifiedOnMutation(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	var seen []VideoProgress
	s.Subscribe(func(p VideoProgress) { seen = append(seen, p) })

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 5)
	s.AddInterval(ctx, "v1", 5, 5) // filtered, no notification
	s.SetLastPosition(ctx, "v1", 5)

	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	if seen[1].TotalWatchedTime != 5 {
		t.Fatalf("observer got stale snapshot: %+v", seen[1])
	}
	if seen[2].LastPosition != 5 {
		t.Fatalf("observer got stale snapshot: %+v", seen[2])
	}
}

func TestGetProgress_SnapshotIsolated(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 5)
	rec, _ := s.GetProgress("v1")
	rec.Intervals[0].End = 999

	fresh, _ := s.GetProgress("v1")
	if fresh.Intervals[0].End != 5 {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestStoredEntry_WireFormat(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	s.InitializeVideo("v1", 10)
	s.AddInterval(ctx, "v1", 0, 5)

	payload, ok, err := mem.Get(ctx, DefaultStorageKey)
	if err != nil || !ok {
		t.Fatalf("expected persisted payload, err=%v", err)
	}
	want := `[["v1",{"videoId":"v1","intervals":[{"start":0,"end":5}],"totalWatchedTime":5,"totalDuration":10,"percentWatched":50,"lastPosition":0}]]`
	if payload != want {
		t.Fatalf("unexpected wire format:\n got %s\nwant %s", payload, want)
	}
}
