package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qfitlab/qfit/internal/events"
	"github.com/rs/zerolog"
)

// Processor executes work items one at a time, respecting priorities and
// quiescence dependencies.
type Processor struct {
	registry *Registry
	bus      *events.Bus
	log      zerolog.Logger
	timeout  time.Duration

	trigger chan struct{}
	done    chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	retryQueue []*WorkItem
	retryTimer *time.Timer
	inFlight   map[string]bool
	exhausted  map[string]bool
	mu         sync.Mutex

	// retryBase is shortened in tests.
	retryBase time.Duration
}

// NewProcessor creates a work processor. The bus may be nil; lifecycle events
// are then skipped.
func NewProcessor(registry *Registry, bus *events.Bus, log zerolog.Logger) *Processor {
	return NewProcessorWithTimeout(registry, bus, log, WorkTimeout)
}

// NewProcessorWithTimeout creates a work processor with a custom per-item
// timeout. This is primarily used for testing.
func NewProcessorWithTimeout(registry *Registry, bus *events.Bus, log zerolog.Logger, timeout time.Duration) *Processor {
	return &Processor{
		registry:   registry,
		bus:        bus,
		log:        log.With().Str("service", "work").Logger(),
		timeout:    timeout,
		trigger:    make(chan struct{}, 1),
		done:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		retryQueue: make([]*WorkItem, 0),
		inFlight:   make(map[string]bool),
		exhausted:  make(map[string]bool),
		retryBase:  retryBaseDelay,
	}
}

// Run starts the processor loop. This blocks until Stop is called.
func (p *Processor) Run() {
	defer close(p.stopped)

	for {
		select {
		case <-p.stop:
			return
		case <-p.trigger:
			p.processOne()
		case <-p.done:
			p.processOne()
		}
	}
}

// Stop stops the processor and waits for the loop to exit. In-flight work is
// left to finish on its own; its completion signal goes nowhere.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.stopped

	p.mu.Lock()
	if p.retryTimer != nil {
		p.retryTimer.Stop()
	}
	p.mu.Unlock()
}

// Trigger wakes the processor to check for work. Non-blocking and safe from
// any goroutine.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// Trigger already pending.
	}
}

// ExecuteNow synchronously executes one work item, bypassing priority and
// dependency checks. Used for manual triggers via the API. A subject that is
// already in flight is refused rather than run twice.
func (p *Processor) ExecuteNow(workTypeID string, subject string) error {
	wt := p.registry.Get(workTypeID)
	if wt == nil {
		return fmt.Errorf("unknown work type: %s", workTypeID)
	}

	item := NewWorkItem(wt, subject)
	if !p.claim(item.ID) {
		return fmt.Errorf("work %s is already in flight", item.ID)
	}
	defer p.release(item.ID)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.execute(ctx, item, wt)
	if err == nil {
		p.mu.Lock()
		delete(p.exhausted, item.ID)
		p.mu.Unlock()
	}
	return err
}

// processOne finds and starts the next eligible work item. It returns
// immediately; execution happens on its own goroutine and signals done.
func (p *Processor) processOne() {
	p.mu.Lock()
	busy := len(p.inFlight) > 0
	p.mu.Unlock()
	if busy {
		return
	}

	item, wt := p.findNextWork()
	if item == nil {
		item, wt = p.popRetryQueue()
	}
	if item == nil {
		return
	}

	if !p.claim(item.ID) {
		return
	}

	go func() {
		defer func() {
			p.release(item.ID)

			select {
			case p.done <- struct{}{}:
			default:
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		err := p.execute(ctx, item, wt)
		if err == nil {
			p.mu.Lock()
			delete(p.exhausted, item.ID)
			p.mu.Unlock()
			return
		}

		if ctx.Err() == context.DeadlineExceeded {
			p.log.Error().Str("work", item.ID).Dur("timeout", p.timeout).Msg("Work timed out")
		} else {
			p.log.Error().Err(err).Str("work", item.ID).Msg("Work failed")
		}

		item.Retries++
		if item.Retries < MaxRetries {
			p.pushRetryQueue(item)
		} else {
			p.markExhausted(item)
		}
	}()
}

// findNextWork scans work types in priority order and returns the first
// eligible item, or nil when nothing is pending.
func (p *Processor) findNextWork() (*WorkItem, *WorkType) {
	for _, wt := range p.registry.ByPriority() {
		subjects := wt.FindSubjects()
		if len(subjects) == 0 {
			continue
		}

		if !p.dependenciesQuiescent(wt) {
			continue
		}

		for _, subject := range subjects {
			item := NewWorkItem(wt, subject)
			if p.isHeld(item.ID) {
				continue
			}
			return item, wt
		}
	}

	return nil, nil
}

// dependenciesQuiescent reports whether every work type this one depends on
// has no pending subjects and nothing in flight.
func (p *Processor) dependenciesQuiescent(wt *WorkType) bool {
	for _, depID := range wt.DependsOn {
		dep := p.registry.Get(depID)
		if dep == nil {
			continue
		}
		if len(dep.FindSubjects()) > 0 {
			return false
		}
		if p.typeInFlight(depID) {
			return false
		}
	}
	return true
}

// execute runs one item and emits its lifecycle events.
func (p *Processor) execute(ctx context.Context, item *WorkItem, wt *WorkType) error {
	p.emitStatus(item, "started", nil, 0)
	started := time.Now()

	err := wt.Execute(ctx, item.Subject)
	if err != nil {
		p.emitStatus(item, "failed", err, time.Since(started))
		return err
	}

	p.emitStatus(item, "completed", nil, time.Since(started))
	return nil
}

func (p *Processor) emitStatus(item *WorkItem, status string, execErr error, elapsed time.Duration) {
	if p.bus == nil {
		return
	}

	data := &events.JobStatusData{
		JobID:     item.ID,
		JobType:   item.TypeID,
		Status:    status,
		Timestamp: time.Now(),
	}
	if item.Subject != "" {
		data.Metadata = map[string]interface{}{"subject": item.Subject}
	}
	if execErr != nil {
		data.Error = execErr.Error()
	}
	if status != "started" {
		data.Duration = elapsed.Seconds()
	}

	p.bus.EmitData("work", data)
}

// claim marks an item in flight. Returns false when it already is.
func (p *Processor) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight[id] {
		return false
	}
	p.inFlight[id] = true
	return true
}

func (p *Processor) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inFlight, id)
}

// isHeld reports whether an item is in flight, waiting for a retry, or
// suppressed after exhausting its retries. FindSubjects answers from durable
// state and keeps returning such subjects; this is what stops the scan from
// re-issuing them.
func (p *Processor) isHeld(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight[id] || p.exhausted[id] {
		return true
	}
	for _, item := range p.retryQueue {
		if item.ID == id {
			return true
		}
	}
	return false
}

func (p *Processor) typeInFlight(typeID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.inFlight {
		if id == typeID {
			return true
		}
		if len(id) > len(typeID) && id[:len(typeID)] == typeID && id[len(typeID)] == ':' {
			return true
		}
	}
	return false
}

// backoff returns the wait before the next attempt of an item that has
// failed retries times: retryBase·2^(retries−1), capped at retryMaxDelay.
func (p *Processor) backoff(retries int) time.Duration {
	d := p.retryBase
	for i := 1; i < retries; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

// pushRetryQueue schedules a failed item for another attempt after backoff.
func (p *Processor) pushRetryQueue(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := p.backoff(item.Retries)
	item.NotBefore = time.Now().Add(delay)

	p.log.Warn().
		Str("work", item.ID).
		Int("retries", item.Retries).
		Dur("backoff", delay).
		Msg("Work scheduled for retry")

	p.retryQueue = append(p.retryQueue, item)
	p.scheduleRetryWakeLocked()
}

// popRetryQueue removes and returns the first due item from the retry queue.
// When items are waiting but none is due yet, it re-arms the wake timer.
func (p *Processor) popRetryQueue() (*WorkItem, *WorkType) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for i, item := range p.retryQueue {
		if item.NotBefore.After(now) {
			continue
		}

		p.retryQueue = append(p.retryQueue[:i], p.retryQueue[i+1:]...)

		wt := p.registry.Get(item.TypeID)
		if wt == nil {
			// Work type unregistered since the failure; drop the item.
			p.scheduleRetryWakeLocked()
			return nil, nil
		}
		return item, wt
	}

	p.scheduleRetryWakeLocked()
	return nil, nil
}

// scheduleRetryWakeLocked arms a timer for the earliest NotBefore in the
// retry queue so due retries do not wait for the next external trigger.
// Must be called with the lock held.
func (p *Processor) scheduleRetryWakeLocked() {
	var earliest time.Time
	for _, item := range p.retryQueue {
		if earliest.IsZero() || item.NotBefore.Before(earliest) {
			earliest = item.NotBefore
		}
	}
	if earliest.IsZero() {
		return
	}

	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	if p.retryTimer == nil {
		p.retryTimer = time.AfterFunc(d, p.Trigger)
	} else {
		p.retryTimer.Reset(d)
	}
}

func (p *Processor) markExhausted(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exhausted[item.ID] = true
	p.log.Warn().
		Str("work", item.ID).
		Int("retries", item.Retries).
		Msg("Max retries reached, suppressing until restart or manual execute")
}
