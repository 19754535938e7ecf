package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ideaflow/internal/events"
	"ideaflow/internal/models"
	"ideaflow/internal/repository"
)

var (
	ErrUnknownLoop = errors.New("unknown loop")
	ErrLoopStopped = errors.New("loop is not running")
)

// TickFunc performs one loop iteration, restricted to the domain filter when
// set. It blocks until the work completes.
type TickFunc func(ctx context.Context, domains []string) error

// LoopStatus is the externally visible state of one loop.
type LoopStatus struct {
	Name            string   `json:"name"`
	Running         bool     `json:"running"`
	IntervalSeconds int64    `json:"interval_seconds"`
	Iterations      uint64   `json:"iterations"`
	Domains         []string `json:"domains,omitempty"`
	SkippedTicks    uint64   `json:"skipped_ticks"`
}

type loop struct {
	name   string
	agents []string
	task   string
	tick   TickFunc

	mu         sync.Mutex
	running    bool
	interval   time.Duration
	domains    []string
	iterations uint64
	inFlight   bool
	skipped    uint64
	stop       chan struct{}
	update     chan time.Duration
}

// Scheduler owns the named loops and the agent registry that backs them.
// It is explicitly constructed state: multiple schedulers can coexist in
// tests without sharing anything.
type Scheduler struct {
	Repo     repository.Repository
	Registry *Registry
	Logger   *zap.Logger
	Events   *events.Hub

	// baseCtx is the context ticks run on. Stopping a loop is advisory for
	// future ticks only; in-flight work finishes on baseCtx.
	baseCtx context.Context

	mu    sync.Mutex
	loops map[string]*loop
}

func New(baseCtx context.Context, repo repository.Repository, registry *Registry, logger *zap.Logger, hub *events.Hub) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Scheduler{
		Repo:     repo,
		Registry: registry,
		Logger:   logger,
		Events:   hub,
		baseCtx:  baseCtx,
		loops:    map[string]*loop{},
	}
}

// AddLoop registers a named loop and its driving agents. Iteration counters
// are restored from the persisted loop state when present.
func (s *Scheduler) AddLoop(ctx context.Context, name string, agents []string, task string, tick TickFunc) {
	l := &loop{
		name:   name,
		agents: agents,
		task:   task,
		tick:   tick,
		update: make(chan time.Duration, 1),
	}
	if s.Repo != nil {
		if saved, err := s.Repo.GetLoopState(ctx, name); err == nil && saved != nil {
			l.iterations = saved.Iterations
			if saved.IntervalSeconds > 0 {
				l.interval = time.Duration(saved.IntervalSeconds) * time.Second
			}
			if len(saved.DomainFilter) > 0 {
				_ = json.Unmarshal(saved.DomainFilter, &l.domains)
			}
		}
	}
	s.mu.Lock()
	s.loops[name] = l
	s.mu.Unlock()
}

// Start begins (or reconfigures) a loop. Calling Start on a running loop is
// idempotent: the interval and domain filter update, no second timer is
// created, and the iteration counter is untouched.
func (s *Scheduler) Start(ctx context.Context, name string, interval time.Duration, domains []string) error {
	l := s.get(name)
	if l == nil {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, name)
	}
	if interval <= 0 {
		interval = time.Minute
	}

	l.mu.Lock()
	l.interval = interval
	if domains != nil {
		l.domains = append([]string(nil), domains...)
	}
	alreadyRunning := l.running
	if !alreadyRunning {
		l.running = true
		l.stop = make(chan struct{})
	}
	l.mu.Unlock()

	if alreadyRunning {
		// Nudge the existing timer; never spawn a second one.
		select {
		case l.update <- interval:
		default:
		}
	} else {
		go s.run(l, interval)
	}

	s.persist(ctx, l)
	s.publish(l)
	if s.Logger != nil {
		s.Logger.Info("loop started",
			zap.String("loop", name),
			zap.Duration("interval", interval),
			zap.Strings("domains", domains),
			zap.Bool("reconfigured", alreadyRunning),
		)
	}
	return nil
}

// Stop halts future ticks. Work already in flight runs to completion.
func (s *Scheduler) Stop(ctx context.Context, name string) error {
	l := s.get(name)
	if l == nil {
		return fmt.Errorf("%w: %s", ErrUnknownLoop, name)
	}
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.running = false
	close(l.stop)
	l.mu.Unlock()

	s.persist(ctx, l)
	s.publish(l)
	if s.Logger != nil {
		s.Logger.Info("loop stopped", zap.String("loop", name))
	}
	return nil
}

// Status reports one loop.
func (s *Scheduler) Status(name string) (LoopStatus, error) {
	l := s.get(name)
	if l == nil {
		return LoopStatus{}, fmt.Errorf("%w: %s", ErrUnknownLoop, name)
	}
	return l.status(), nil
}

// StatusAll reports every loop, sorted by name.
func (s *Scheduler) StatusAll() []LoopStatus {
	s.mu.Lock()
	loops := make([]*loop, 0, len(s.loops))
	for _, l := range s.loops {
		loops = append(loops, l)
	}
	s.mu.Unlock()
	out := make([]LoopStatus, 0, len(loops))
	for _, l := range loops {
		out = append(out, l.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) get(name string) *loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loops[name]
}

func (s *Scheduler) run(l *loop, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	l.mu.Lock()
	stop := l.stop
	l.mu.Unlock()
	for {
		select {
		case <-stop:
			return
		case d := <-l.update:
			t.Reset(d)
		case <-t.C:
			s.fire(l)
		}
	}
}

// fire runs one tick. At most one tick per loop is in flight: if the
// previous tick is still running when the interval elapses, this tick is
// skipped, not queued.
func (s *Scheduler) fire(l *loop) {
	l.mu.Lock()
	if l.inFlight {
		l.skipped++
		l.mu.Unlock()
		if s.Logger != nil {
			s.Logger.Warn("tick still in flight, skipping", zap.String("loop", l.name))
		}
		return
	}
	l.inFlight = true
	domains := append([]string(nil), l.domains...)
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			l.inFlight = false
			l.mu.Unlock()
		}()
		ctx := s.baseCtx
		for _, name := range l.agents {
			s.Registry.MarkRunning(ctx, name, l.task)
		}
		err := l.tick(ctx, domains)
		if err != nil {
			// A failed tick never stops the loop.
			for _, name := range l.agents {
				s.Registry.MarkError(ctx, name)
			}
			if s.Logger != nil {
				s.Logger.Warn("scheduler tick failed",
					zap.String("loop", l.name),
					zap.Error(err),
				)
			}
			return
		}
		for _, name := range l.agents {
			s.Registry.MarkIdle(ctx, name)
		}
		l.mu.Lock()
		l.iterations++
		l.mu.Unlock()
		s.persist(ctx, l)
		s.publish(l)
	}()
}

func (s *Scheduler) persist(ctx context.Context, l *loop) {
	if s.Repo == nil {
		return
	}
	st := l.status()
	var filter []byte
	if len(st.Domains) > 0 {
		filter, _ = json.Marshal(st.Domains)
	}
	state := &models.LoopState{
		Name:            st.Name,
		Running:         st.Running,
		IntervalSeconds: st.IntervalSeconds,
		Iterations:      st.Iterations,
		DomainFilter:    filter,
	}
	if err := s.Repo.UpsertLoopState(ctx, state); err != nil && s.Logger != nil {
		s.Logger.Warn("loop state persist failed", zap.String("loop", l.name), zap.Error(err))
	}
}

func (s *Scheduler) publish(l *loop) {
	if s.Events == nil {
		return
	}
	st := l.status()
	status := "stopped"
	if st.Running {
		status = "running"
	}
	s.Events.Publish(events.Event{
		Type:   events.TypeLoopStatus,
		Loop:   st.Name,
		Status: status,
		Detail: fmt.Sprintf("iterations=%d", st.Iterations),
	})
}

func (l *loop) status() LoopStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoopStatus{
		Name:            l.name,
		Running:         l.running,
		IntervalSeconds: int64(l.interval / time.Second),
		Iterations:      l.iterations,
		Domains:         append([]string(nil), l.domains...),
		SkippedTicks:    l.skipped,
	}
}
