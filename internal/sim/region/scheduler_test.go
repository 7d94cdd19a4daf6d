package region

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"timbercraft.ai/internal/sim/world/logic/treescan"
)

func waitOrFail(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestKeyOfFloorsNegatives(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	cases := map[treescan.Coord]Key{
		{X: 0, Z: 0}:     {0, 0},
		{X: 15, Z: 15}:   {0, 0},
		{X: 16, Z: -1}:   {1, -1},
		{X: -16, Z: -17}: {-1, -2},
	}
	for c, want := range cases {
		if got := s.KeyOf(c); got != want {
			t.Fatalf("KeyOf(%v): got %+v want %+v", c, got, want)
		}
	}
}

func TestRunAtPreservesOrderWithinRegion(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		c := treescan.Coord{X: i % 16, Y: i, Z: 3}
		if err := s.RunAt(c, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("RunAt: %v", err)
		}
	}
	s.Close()
	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegionsRunInParallel(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	release := make(chan struct{})
	done := make(chan struct{})
	if err := s.RunAt(treescan.Coord{X: 0}, func() { <-release }); err != nil {
		t.Fatalf("RunAt: %v", err)
	}
	// Region (10,0) must not wait for region (0,0).
	if err := s.RunAt(treescan.Coord{X: 160}, func() { close(release); close(done) }); err != nil {
		t.Fatalf("RunAt: %v", err)
	}
	waitOrFail(t, done, "second region")
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	done := make(chan struct{})
	_ = s.RunAt(treescan.Coord{}, func() { panic("boom") })
	_ = s.RunAt(treescan.Coord{}, func() { close(done) })
	waitOrFail(t, done, "task after panic")

	bgDone := make(chan struct{})
	_ = s.Go(func() { panic("bg boom") })
	_ = s.Go(func() { close(bgDone) })
	waitOrFail(t, bgDone, "background task after panic")
}

func TestBackgroundPoolIsBounded(t *testing.T) {
	s := New(Config{Size: 16, BackgroundWorkers: 2}, nil)
	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		_ = s.Go(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		})
	}
	close(release)
	wg.Wait()
	s.Close()
	if p := peak.Load(); p > 2 {
		t.Fatalf("expected at most 2 concurrent background tasks, saw %d", p)
	}
}

func TestCloseDrainsThenRejects(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		_ = s.RunAt(treescan.Coord{X: i * 20}, func() { ran.Add(1) })
		_ = s.Go(func() { ran.Add(1) })
	}
	s.Close()
	if ran.Load() != 20 {
		t.Fatalf("expected queued tasks to drain, ran %d", ran.Load())
	}
	if err := s.RunAt(treescan.Coord{}, func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("RunAt after close: %v", err)
	}
	if err := s.Go(func() {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Go after close: %v", err)
	}
	s.Close()
}

func TestIdleRegionsAreReaped(t *testing.T) {
	s := New(Config{Size: 16, IdleTimeout: 10 * time.Millisecond}, nil)
	defer s.Close()
	done := make(chan struct{})
	_ = s.RunAt(treescan.Coord{}, func() { close(done) })
	waitOrFail(t, done, "task")
	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().Regions != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle region was not reaped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	again := make(chan struct{})
	if err := s.RunAt(treescan.Coord{}, func() { close(again) }); err != nil {
		t.Fatalf("RunAt after reap: %v", err)
	}
	waitOrFail(t, again, "task after reap")
}

func TestKeysOfSortsAndDedupes(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	got := s.KeysOf([]treescan.Coord{{X: 16}, {X: 15}, {X: 17, Z: 2}, {X: -1, Z: 20}, {X: 15, Z: -3}})
	want := []Key{{-1, 1}, {0, -1}, {0, 0}, {1, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if !s.SingleRegion([]treescan.Coord{{X: 1}, {X: 14, Y: 90, Z: 15}}) {
		t.Fatalf("cells inside one region reported as spanning")
	}
	if s.SingleRegion([]treescan.Coord{{X: 15}, {X: 16}}) {
		t.Fatalf("cells across a boundary reported as one region")
	}
}

func TestRunAtAllWaitsForEveryRegion(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	started := make(chan struct{})
	hold := make(chan struct{})
	if err := s.RunAt(treescan.Coord{X: 16}, func() { close(started); <-hold }); err != nil {
		t.Fatalf("RunAt: %v", err)
	}
	waitOrFail(t, started, "blocking task")

	var runs atomic.Int32
	done := make(chan struct{})
	if err := s.RunAtAll([]treescan.Coord{{X: 15}, {X: 16}}, func() {
		runs.Add(1)
		close(done)
	}); err != nil {
		t.Fatalf("RunAtAll: %v", err)
	}
	select {
	case <-done:
		t.Fatalf("ran while region (1,0) was busy")
	case <-time.After(50 * time.Millisecond):
	}
	// Region (0,0) is parked on the gang and must not run later work until it finishes.
	later := make(chan struct{})
	if err := s.RunAt(treescan.Coord{X: 3}, func() { close(later) }); err != nil {
		t.Fatalf("RunAt: %v", err)
	}
	select {
	case <-later:
		t.Fatalf("region (0,0) ran past the gang")
	case <-time.After(20 * time.Millisecond):
	}

	close(hold)
	waitOrFail(t, done, "gang")
	waitOrFail(t, later, "later task")
	if n := runs.Load(); n != 1 {
		t.Fatalf("gang ran %d times", n)
	}
}

func TestRunAtAllOverlappingGangsDoNotDeadlock(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 40; i++ {
		cs := []treescan.Coord{{X: 0}, {X: 16}, {X: 32, Z: 16}}
		if i%2 == 1 {
			cs = []treescan.Coord{{X: 32, Z: 16}, {X: 16}}
		}
		wg.Add(1)
		go func() {
			done := make(chan struct{})
			if err := s.RunAtAll(cs, func() {
				mu.Lock()
				total++
				mu.Unlock()
				close(done)
			}); err != nil {
				t.Errorf("RunAtAll: %v", err)
				close(done)
			}
			<-done
			wg.Done()
		}()
	}
	all := make(chan struct{})
	go func() { wg.Wait(); close(all) }()
	waitOrFail(t, all, "overlapping gangs")
	if total != 40 {
		t.Fatalf("total: got %d want 40", total)
	}
}

func TestRunAtAllPanicReleasesRegions(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	defer s.Close()
	if err := s.RunAtAll([]treescan.Coord{{X: 0}, {X: 16}}, func() { panic("boom") }); err != nil {
		t.Fatalf("RunAtAll: %v", err)
	}
	done := make(chan struct{})
	if err := s.RunAt(treescan.Coord{X: 16}, func() { close(done) }); err != nil {
		t.Fatalf("RunAt: %v", err)
	}
	waitOrFail(t, done, "region (1,0) after panic")
}

func TestRunAtAllAfterClose(t *testing.T) {
	s := New(Config{Size: 16}, nil)
	s.Close()
	err := s.RunAtAll([]treescan.Coord{{X: 0}, {X: 16}}, func() {})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v want ErrClosed", err)
	}
}
