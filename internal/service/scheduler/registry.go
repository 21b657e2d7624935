package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/service/recurrence"
)

var ErrClosed = errors.New("scheduler is shut down")

// JobKey identifies one armed job: a schedule and one of its time slots.
type JobKey struct {
	ScheduleID uint
	Slot       string
}

func (k JobKey) String() string {
	return fmt.Sprintf("schedule_%d_%s", k.ScheduleID, k.Slot)
}

// FiringJob is the execution context a firing captures when it starts.
type FiringJob struct {
	Key       JobKey
	UserID    uint
	FiredAt   time.Time
	Coalesced bool
}

type FireFunc func(ctx context.Context, job FiringJob)

// JobInfo is a read-only view of an armed job.
type JobInfo struct {
	ScheduleID uint      `json:"schedule_id"`
	Slot       string    `json:"slot"`
	Spec       string    `json:"spec"`
	NextFire   time.Time `json:"next_fire"`
	Running    bool      `json:"running"`
	Pending    bool      `json:"pending"`
}

type armedJob struct {
	key     JobKey
	userID  uint
	trigger recurrence.Trigger
	next    time.Time
	timer   Timer
	gen     uint64

	// pending records at most one tick that arrived while a firing for
	// this identity was in flight.
	pending bool
}

// Registry is the live table of armed timers. Arm, Disarm and tick handling
// are serialized by mu; firings run outside the lock on a bounded pool.
type Registry struct {
	mu     sync.Mutex
	jobs   map[JobKey]*armedJob
	busy   map[JobKey]bool
	closed bool

	clock  Clock
	fire   FireFunc
	sem    chan struct{}
	logger *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewRegistry(clock Clock, workers int, fire FireFunc, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = realClock{}
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Firings get their own context so that disarming a schedule never
	// interrupts one already in progress.
	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		jobs:   make(map[JobKey]*armedJob),
		busy:   make(map[JobKey]bool),
		clock:  clock,
		fire:   fire,
		sem:    make(chan struct{}, workers),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Arm installs one job per trigger for scheduleID, replacing jobs with the
// same identity and removing jobs whose slot is no longer present.
func (r *Registry) Arm(scheduleID, userID uint, triggers []recurrence.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	wanted := make(map[JobKey]recurrence.Trigger, len(triggers))
	for _, t := range triggers {
		if t.ScheduleID != scheduleID {
			return errors.Newf("trigger for schedule %d passed to arm schedule %d", t.ScheduleID, scheduleID)
		}
		wanted[JobKey{ScheduleID: scheduleID, Slot: t.Slot}] = t
	}

	for key, job := range r.jobs {
		if key.ScheduleID != scheduleID {
			continue
		}
		if _, keep := wanted[key]; !keep {
			r.removeLocked(job)
		}
	}

	for key, t := range wanted {
		job, exists := r.jobs[key]
		if !exists {
			job = &armedJob{key: key}
			r.jobs[key] = job
		} else if job.timer != nil {
			job.timer.Stop()
		}
		job.userID = userID
		job.trigger = t
		job.gen++
		r.scheduleLocked(job, r.clock.Now())
	}

	return nil
}

// Disarm removes every job of scheduleID and returns how many were removed.
// Firings already in flight finish; no new firing starts.
func (r *Registry) Disarm(scheduleID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, job := range r.jobs {
		if key.ScheduleID == scheduleID {
			r.removeLocked(job)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Jobs returns a snapshot ordered by schedule id then slot.
func (r *Registry) Jobs() []JobInfo {
	r.mu.Lock()
	out := make([]JobInfo, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, JobInfo{
			ScheduleID: job.key.ScheduleID,
			Slot:       job.key.Slot,
			Spec:       job.trigger.Spec,
			NextFire:   job.next,
			Running:    r.busy[job.key],
			Pending:    job.pending,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduleID != out[j].ScheduleID {
			return out[i].ScheduleID < out[j].ScheduleID
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Close stops all timers and waits for in-flight firings. If ctx ends first
// the firings' context is cancelled and ctx.Err() is returned.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for _, job := range r.jobs {
			r.removeLocked(job)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

func (r *Registry) removeLocked(job *armedJob) {
	if job.timer != nil {
		job.timer.Stop()
		job.timer = nil
	}
	job.pending = false
	delete(r.jobs, job.key)
}

func (r *Registry) scheduleLocked(job *armedJob, from time.Time) {
	job.next = job.trigger.Next(from)
	gen := job.gen
	job.timer = r.clock.AfterFunc(job.next.Sub(from), func() {
		r.onTick(job, gen)
	})
}

func (r *Registry) onTick(job *armedJob, gen uint64) {
	r.mu.Lock()
	if r.closed || r.jobs[job.key] != job || job.gen != gen {
		r.mu.Unlock()
		return
	}

	now := r.clock.Now()
	base := now
	if base.Before(job.next) {
		// Timer fired a little early; never resolve the same instant twice.
		base = job.next
	}
	r.scheduleLocked(job, base)

	// busy is keyed by identity, not by entry, so a job disarmed and
	// re-armed mid-firing still cannot overlap the old firing.
	if r.busy[job.key] {
		job.pending = true
		r.mu.Unlock()
		r.logger.Debug("Tick coalesced while firing in flight", zap.String("job", job.key.String()))
		return
	}

	r.busy[job.key] = true
	r.inflight.Add(1)
	fj := FiringJob{Key: job.key, UserID: job.userID, FiredAt: now}
	r.mu.Unlock()

	go r.run(fj)
}

func (r *Registry) run(fj FiringJob) {
	defer r.inflight.Done()

	for {
		r.sem <- struct{}{}

		// The job may have been disarmed, or the registry closed, while this
		// firing waited for a worker.
		r.mu.Lock()
		if r.closed || r.jobs[fj.Key] == nil {
			delete(r.busy, fj.Key)
			r.mu.Unlock()
			<-r.sem
			r.logger.Debug("Dropping queued firing", zap.String("job", fj.Key.String()))
			return
		}
		r.mu.Unlock()

		r.execute(fj)
		<-r.sem

		r.mu.Lock()
		if job, ok := r.jobs[fj.Key]; ok && job.pending && !r.closed {
			job.pending = false
			fj = FiringJob{Key: job.key, UserID: job.userID, FiredAt: r.clock.Now(), Coalesced: true}
			r.mu.Unlock()
			continue
		}
		delete(r.busy, fj.Key)
		r.mu.Unlock()
		return
	}
}

func (r *Registry) execute(fj FiringJob) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Firing panicked",
				zap.String("job", fj.Key.String()),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	r.fire(r.ctx, fj)
}
