// Package pipeline implements the orchestrator: it owns the database-backed
// stores, the registry, the router, the executor and the file watcher, drives
// a background poll loop that picks up pending jobs and runs them to their
// next suspension point, and fans out lifecycle events to subscribers.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/internal/registry"
	"github.com/buildbeaver/docflow/internal/store"
)

// The worker loop polls for pending jobs every DefaultPollInterval and backs
// off for DefaultBackoffInterval after an error of its own.
const (
	DefaultPollInterval    = time.Second
	DefaultBackoffInterval = 5 * time.Second
	DefaultMaxConcurrent   = 4
)

// EventName enumerates the lifecycle events fanned out to subscribers.
type EventName string

const (
	EventJobCreated        EventName = "job_created"
	EventJobStarted        EventName = "job_started"
	EventJobCompleted      EventName = "job_completed"
	EventJobFailed         EventName = "job_failed"
	EventStepCompleted     EventName = "step_completed"
	EventStepAwaitingInput EventName = "step_awaiting_input"
	EventFileDetected      EventName = "file_detected"
)

// Event is delivered to every subscriber registered via Subscribe.
type Event struct {
	Name      EventName
	JobID     model.JobID
	Job       *model.Job
	StepName  string
	Status    string
	Error     string
	Path      string
	WatchName string
	EventType string
}

// Subscriber receives Events. A panic or error inside one subscriber must
// not prevent delivery to the others.
type Subscriber func(Event)

// Executor is the narrow view of internal/executor.Executor the orchestrator
// drives jobs with.
type Executor interface {
	ExecuteNextStep(ctx context.Context, job *model.Job) (*model.StepResult, error)
	ResumeStep(ctx context.Context, job *model.Job, name string, userInput map[string]interface{}) (*model.StepResult, error)
	RevertStep(ctx context.Context, job *model.Job, name string) (*model.StepResult, error)
	RevertToStep(ctx context.Context, job *model.Job, target string) (*model.Job, error)
	RevertAll(ctx context.Context, job *model.Job) (*model.Job, error)
}

// Watcher is the narrow view of internal/watcher.Watcher the orchestrator
// starts and stops alongside its own poll loop.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
	ScanExisting(ctx context.Context, name string) error
}

// Config tunes the orchestrator's background worker.
type Config struct {
	MaxConcurrentJobs int
	PollInterval      time.Duration
	BackoffInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrent
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BackoffInterval <= 0 {
		c.BackoffInterval = DefaultBackoffInterval
	}
	return c
}

// Clock supplies the current time, injected for deterministic tests.
type Clock func() model.Time

// Pipeline multiplexes jobs through the executor under a concurrency cap.
type Pipeline struct {
	log      logger.Log
	store    *store.Store
	registry *registry.Registry
	executor Executor
	watcher  Watcher
	clock    Clock
	config   Config

	subMu       sync.Mutex
	subscribers []Subscriber

	activeMu sync.Mutex
	active   map[model.JobID]bool

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Pipeline. The watcher, if any, must be attached with
// SetWatcher before Start.
func New(logFactory logger.LogFactory, st *store.Store, reg *registry.Registry, ex Executor, clock Clock, cfg Config) *Pipeline {
	return &Pipeline{
		log:      logFactory("pipeline"),
		store:    st,
		registry: reg,
		executor: ex,
		clock:    clock,
		config:   cfg.withDefaults(),
		active:   make(map[model.JobID]bool),
	}
}

// SetWatcher attaches w, which the orchestrator starts/stops alongside its
// own poll loop. w's sink should already be wired to p.OnFileDetected.
func (p *Pipeline) SetWatcher(w Watcher) { p.watcher = w }

// Subscribe registers sub to receive every future Event.
func (p *Pipeline) Subscribe(sub Subscriber) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.subscribers = append(p.subscribers, sub)
}

// emit fans e out to every subscriber, isolating each from the others'
// panics. One bad subscriber must not break delivery to the rest.
func (p *Pipeline) emit(e Event) {
	p.subMu.Lock()
	subs := make([]Subscriber, len(p.subscribers))
	copy(subs, p.subscribers)
	p.subMu.Unlock()

	for _, sub := range subs {
		p.deliver(sub, e)
	}
}

func (p *Pipeline) deliver(sub Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("recovered panic in event subscriber for %q: %v", e.Name, r)
		}
	}()
	sub(e)
}

// Start connects the background worker (and, if attached, the watcher) and
// returns once both are running. Calling Start twice without an intervening
// Stop is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.watcher != nil {
		if err := p.watcher.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	p.running = true
	p.wg.Add(1)
	go p.pollLoop(runCtx)

	p.log.Infof("pipeline started (max_concurrent_jobs=%d, poll_interval=%s)", p.config.MaxConcurrentJobs, p.config.PollInterval)
	return nil
}

// Stop flips the running flag, stops the watcher, and waits for the worker
// loop and every in-flight per-job task to wind down. In-flight step
// executions are not preempted; they run to their next suspension point.
func (p *Pipeline) Stop() {
	p.runMu.Lock()
	if !p.running {
		p.runMu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.runMu.Unlock()

	if p.watcher != nil {
		p.watcher.Stop()
	}
	cancel()
	p.wg.Wait()

	p.unloadProcessors()
	if p.store != nil && p.store.DB != nil {
		if err := p.store.DB.Close(); err != nil {
			p.log.Warnf("error closing database: %s", err)
		}
	}
	p.log.Info("pipeline stopped")
}

// unloadProcessors calls OnUnload on every registered processor that
// implements LifecycleHooks, mirroring LoadAll's OnLoad call.
func (p *Pipeline) unloadProcessors() {
	p.registry.Each(func(proc plugin.Processor) {
		if hooks, ok := proc.(plugin.LifecycleHooks); ok {
			if err := hooks.OnUnload(); err != nil {
				p.log.Warnf("error in on_unload hook for processor %q: %s", proc.Name(), err)
			}
		}
	})
}

func (p *Pipeline) now() model.Time { return p.clock() }
