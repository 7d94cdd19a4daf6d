package region

import (
	"errors"
	"io"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"timbercraft.ai/internal/sim/world/logic/mathx"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

var ErrClosed = errors.New("region: scheduler closed")

type Key struct {
	RX int
	RZ int
}

type Config struct {
	Size              int // blocks per region edge
	BackgroundWorkers int
	IdleTimeout       time.Duration
}

// Scheduler runs tasks with region affinity: tasks submitted for coordinates in the same region run
// one at a time in submission order on that region's goroutine. Tasks for different regions run in
// parallel. Go runs tasks on a bounded background pool with no affinity.
type Scheduler struct {
	size   int
	idle   time.Duration
	logger *log.Logger

	mu      sync.Mutex
	closed  bool
	regions map[Key]*queue
	bg      *queue

	stop chan struct{}
	wg   sync.WaitGroup
}

type queue struct {
	tasks []func()
	wake  chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func New(cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.BackgroundWorkers <= 0 {
		cfg.BackgroundWorkers = 1
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	s := &Scheduler{
		size:    cfg.Size,
		idle:    cfg.IdleTimeout,
		logger:  logger,
		regions: map[Key]*queue{},
		bg:      newQueue(),
		stop:    make(chan struct{}),
	}
	for i := 0; i < cfg.BackgroundWorkers; i++ {
		s.wg.Add(1)
		go s.runBackground()
	}
	return s
}

func (s *Scheduler) KeyOf(c treescan.Coord) Key {
	return Key{RX: mathx.FloorDiv(c.X, s.size), RZ: mathx.FloorDiv(c.Z, s.size)}
}

// KeysOf returns the distinct regions owning cs, sorted by RX then RZ.
func (s *Scheduler) KeysOf(cs []treescan.Coord) []Key {
	seen := make(map[Key]struct{}, 4)
	out := make([]Key, 0, 4)
	for _, c := range cs {
		k := s.KeyOf(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RX != out[j].RX {
			return out[i].RX < out[j].RX
		}
		return out[i].RZ < out[j].RZ
	})
	return out
}

// SingleRegion reports whether every coordinate in cs belongs to one region.
func (s *Scheduler) SingleRegion(cs []treescan.Coord) bool {
	if len(cs) == 0 {
		return true
	}
	k := s.KeyOf(cs[0])
	for _, c := range cs[1:] {
		if s.KeyOf(c) != k {
			return false
		}
	}
	return true
}

// RunAt queues fn on the region owning c. It never blocks on the region's backlog.
func (s *Scheduler) RunAt(c treescan.Coord, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pushLocked(s.KeyOf(c), fn)
	return nil
}

// RunAtAll runs fn once every region owning a coordinate in cs has reached it in its queue and is
// parked, so fn may touch any of those cells. fn runs on the lowest key's goroutine. The parts are
// queued on all regions under one lock, which gives every region the same relative order of gangs.
// It must not be waited on from inside one of those regions.
func (s *Scheduler) RunAtAll(cs []treescan.Coord, fn func()) error {
	keys := s.KeysOf(cs)
	if len(keys) == 0 {
		return errors.New("region: no coordinates")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(keys) == 1 {
		s.pushLocked(keys[0], fn)
		return nil
	}

	parked := make(chan struct{}, len(keys)-1)
	done := make(chan struct{})
	s.pushLocked(keys[0], func() {
		defer close(done)
		for range keys[1:] {
			<-parked
		}
		fn()
	})
	for _, k := range keys[1:] {
		s.pushLocked(k, func() {
			parked <- struct{}{}
			<-done
		})
	}
	return nil
}

func (s *Scheduler) pushLocked(k Key, fn func()) {
	q := s.regions[k]
	if q == nil {
		q = newQueue()
		s.regions[k] = q
		s.wg.Add(1)
		go s.runRegion(k, q)
	}
	q.tasks = append(q.tasks, fn)
	q.signal()
}

// Go queues fn on the background pool.
func (s *Scheduler) Go(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.bg.tasks = append(s.bg.tasks, fn)
	s.bg.signal()
	return nil
}

// Close rejects new tasks, lets already queued ones finish and waits for every goroutine to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

type Stats struct {
	Regions    int
	Pending    int
	Background int
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Regions: len(s.regions), Background: len(s.bg.tasks)}
	for _, q := range s.regions {
		st.Pending += len(q.tasks)
	}
	return st
}

// pop returns the next task, or reports whether the scheduler is closed once q is empty.
func (s *Scheduler) pop(q *queue) (func(), bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false, s.closed
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	if len(q.tasks) > 0 {
		q.signal()
	}
	return fn, true, false
}

func (s *Scheduler) runRegion(k Key, q *queue) {
	defer s.wg.Done()
	idle := time.NewTimer(s.idle)
	defer idle.Stop()
	for {
		select {
		case <-q.wake:
		case <-s.stop:
		case <-idle.C:
			s.mu.Lock()
			if len(q.tasks) == 0 && !s.closed {
				delete(s.regions, k)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
		}
		for {
			fn, ok, closed := s.pop(q)
			if !ok {
				if closed {
					return
				}
				break
			}
			s.safeRun("region", k, fn)
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(s.idle)
	}
}

func (s *Scheduler) runBackground() {
	defer s.wg.Done()
	for {
		select {
		case <-s.bg.wake:
		case <-s.stop:
		}
		fn, ok, closed := s.pop(s.bg)
		if !ok {
			if closed {
				return
			}
			continue
		}
		s.safeRun("background", Key{}, fn)
	}
}

func (s *Scheduler) safeRun(kind string, k Key, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("region: %s task panic (region %d,%d): %v\n%s", kind, k.RX, k.RZ, r, debug.Stack())
		}
	}()
	fn()
}
