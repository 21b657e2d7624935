// Package scheduler arms timers for active schedules and runs one firing
// (generate, publish, persist) each time a timer reaches its instant.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/models"
	"github.com/ifuryst/postpilot/internal/service/content"
	"github.com/ifuryst/postpilot/internal/service/events"
	"github.com/ifuryst/postpilot/internal/service/publisher"
	"github.com/ifuryst/postpilot/internal/service/recurrence"
	"github.com/ifuryst/postpilot/internal/service/storage"
)

const staleReason = "interrupted before publish completed"

type Storage interface {
	GetSchedule(ctx context.Context, id uint) (*models.Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]models.Schedule, error)
	UpdateLastRun(ctx context.Context, id uint, ts time.Time) error
	GetActiveAccount(ctx context.Context, userID uint, platform models.Platform) (*models.PublishAccount, error)
	CreatePost(ctx context.Context, post *models.GeneratedPost) error
	UpdatePostStatus(ctx context.Context, id uint, update models.PostStatusUpdate) error
	FailStalePosts(ctx context.Context, before time.Time, reason string) (int64, error)
}

type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (string, error)
}

type Dispatcher interface {
	Publish(ctx context.Context, post *models.GeneratedPost, account *models.PublishAccount) (*publisher.PublishResult, error)
}

// Monitor persists firing failures and publish outcomes for operators.
type Monitor interface {
	RecordFiringError(scheduleID uint, firingID, platform, title string, err error)
	RecordPublishOutcome(platform string, success bool)
}

type nopMonitor struct{}

func (nopMonitor) RecordFiringError(uint, string, string, string, error) {}
func (nopMonitor) RecordPublishOutcome(string, bool)                    {}

type Options struct {
	Workers           int
	GenerationTimeout time.Duration
	PublishTimeout    time.Duration
	StalePostAfter    time.Duration
}

type Option func(*Scheduler)

func WithClock(clock Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

func WithEvents(sink events.Sink) Option {
	return func(s *Scheduler) { s.events = sink }
}

func WithMonitor(monitor Monitor) Option {
	return func(s *Scheduler) { s.monitor = monitor }
}

type Scheduler struct {
	store    Storage
	content  ContentGenerator
	dispatch Dispatcher
	resolver *recurrence.Resolver
	registry *Registry
	events   events.Sink
	monitor  Monitor
	clock    Clock
	opts     Options
	logger   *zap.Logger
}

func New(store Storage, gen ContentGenerator, dispatch Dispatcher, resolver *recurrence.Resolver, opts Options, logger *zap.Logger, options ...Option) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 60 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 30 * time.Second
	}
	if opts.StalePostAfter <= 0 {
		opts.StalePostAfter = 15 * time.Minute
	}

	s := &Scheduler{
		store:    store,
		content:  gen,
		dispatch: dispatch,
		resolver: resolver,
		events:   events.NewNoopSink(),
		monitor:  nopMonitor{},
		clock:    realClock{},
		opts:     opts,
		logger:   logger,
	}
	for _, o := range options {
		o(s)
	}

	s.registry = NewRegistry(s.clock, opts.Workers, s.runFiring, logger)
	return s
}

// Start fails posts a previous process left half-published, then arms every
// active schedule. A schedule that cannot be armed does not stop the others.
func (s *Scheduler) Start(ctx context.Context) error {
	before := s.clock.Now().Add(-s.opts.StalePostAfter)
	swept, err := s.store.FailStalePosts(ctx, before, staleReason)
	if err != nil {
		s.logger.Error("Failed to sweep stale posts", zap.Error(err))
	} else if swept > 0 {
		s.logger.Warn("Marked stale scheduled posts as failed", zap.Int64("count", swept))
	}

	schedules, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return errors.Wrap(err, "restore active schedules")
	}

	armed := 0
	for i := range schedules {
		if err := s.arm(&schedules[i], schedules[i].UserID); err != nil {
			s.logger.Warn("Failed to restore schedule",
				zap.Uint("schedule_id", schedules[i].ID), zap.Error(err))
			continue
		}
		armed++
	}

	s.logger.Info("Scheduler started",
		zap.Int("schedules", armed),
		zap.Int("jobs", s.registry.Len()),
		zap.Int("workers", s.opts.Workers))
	return nil
}

// Shutdown stops accepting firings and waits for in-flight ones to finish
// or for ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	err := s.registry.Close(ctx)
	if err != nil {
		s.logger.Warn("Scheduler shutdown interrupted in-flight firings", zap.Error(err))
	}
	s.logger.Info("Scheduler stopped")
	return err
}

// ArmSchedule (re)installs the jobs for scheduleID from its stored state.
// Inactive schedules are disarmed; deleted ones are disarmed and reported
// with storage.ErrNotFound.
func (s *Scheduler) ArmSchedule(ctx context.Context, scheduleID, userID uint) error {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.registry.Disarm(scheduleID)
		}
		return err
	}
	if userID != 0 && schedule.UserID != userID {
		return errors.Newf("schedule %d does not belong to user %d", scheduleID, userID)
	}
	return s.arm(schedule, schedule.UserID)
}

func (s *Scheduler) DisarmSchedule(scheduleID uint) int {
	removed := s.registry.Disarm(scheduleID)
	if removed > 0 {
		s.logger.Info("Schedule disarmed", zap.Uint("schedule_id", scheduleID), zap.Int("jobs", removed))
	}
	return removed
}

func (s *Scheduler) Jobs() []JobInfo {
	return s.registry.Jobs()
}

func (s *Scheduler) arm(schedule *models.Schedule, userID uint) error {
	if !schedule.IsActive {
		s.registry.Disarm(schedule.ID)
		return nil
	}

	kind := recurrence.Kind(schedule.Frequency)
	triggers, slotErrs, err := s.resolver.Resolve(schedule.ID, kind, schedule.FrequencyValue, schedule.TimeSlots)
	if err != nil {
		s.registry.Disarm(schedule.ID)
		s.logger.Warn("Schedule produces no jobs",
			zap.Uint("schedule_id", schedule.ID),
			zap.String("frequency", string(schedule.Frequency)),
			zap.Error(err))
		return err
	}
	for _, se := range slotErrs {
		s.logger.Warn("Skipping malformed time slot",
			zap.Uint("schedule_id", schedule.ID),
			zap.String("slot", se.Slot),
			zap.Error(se))
	}
	if schedule.FrequencyValue != nil && kind != recurrence.Daily {
		s.logger.Debug("Frequency value is ignored for this recurrence",
			zap.Uint("schedule_id", schedule.ID),
			zap.String("frequency", string(kind)),
			zap.Int("frequency_value", *schedule.FrequencyValue))
	}

	if err := s.registry.Arm(schedule.ID, userID, triggers); err != nil {
		return err
	}

	for _, t := range triggers {
		s.logger.Info("Job armed",
			zap.String("job", JobKey{ScheduleID: schedule.ID, Slot: t.Slot}.String()),
			zap.Uint("user_id", userID),
			zap.String("spec", t.Spec))
	}
	return nil
}

// runFiring is one pass through the firing state machine. Every exit path
// emits exactly one outcome event; nothing is returned or retried.
func (s *Scheduler) runFiring(ctx context.Context, job FiringJob) {
	firingID := uuid.NewString()
	log := s.logger.With(
		zap.String("firing_id", firingID),
		zap.Uint("schedule_id", job.Key.ScheduleID),
		zap.String("slot", job.Key.Slot))

	event := events.FiringEvent{
		FiringID:   firingID,
		ScheduleID: job.Key.ScheduleID,
		UserID:     job.UserID,
		Slot:       job.Key.Slot,
		FiredAt:    job.FiredAt,
	}
	defer func() {
		if err := s.events.Emit(ctx, event); err != nil {
			log.Warn("Failed to emit firing event", zap.Error(err))
		}
	}()

	log.Info("Firing started", zap.Bool("coalesced", job.Coalesced))

	schedule, err := s.store.GetSchedule(ctx, job.Key.ScheduleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.registry.Disarm(job.Key.ScheduleID)
			log.Info("Schedule no longer exists, disarmed")
			event.Outcome, event.Error = events.OutcomeSkipped, "schedule deleted"
			return
		}
		s.abort(log, &event, "", "load schedule", err)
		return
	}
	event.Platform = string(schedule.Platform)
	if !schedule.IsActive {
		log.Info("Schedule inactive, skipping")
		event.Outcome, event.Error = events.OutcomeSkipped, "schedule inactive"
		return
	}

	account, err := s.store.GetActiveAccount(ctx, schedule.UserID, schedule.Platform)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("No active publish account, skipping",
				zap.Uint("user_id", schedule.UserID),
				zap.String("platform", string(schedule.Platform)))
			event.Outcome, event.Error = events.OutcomeSkipped, "no active account"
			return
		}
		s.abort(log, &event, string(schedule.Platform), "load publish account", err)
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, s.opts.GenerationTimeout)
	text, err := s.content.Generate(genCtx, content.Request{
		UserID:           schedule.UserID,
		Platform:         schedule.Platform,
		UseKnowledgeBase: schedule.UseKnowledgeBase,
		UseTrending:      schedule.UseTrendingData,
		Template:         schedule.ContentTemplate,
	})
	cancel()
	if err != nil {
		log.Error("Content generation failed", zap.Error(err))
		s.monitor.RecordFiringError(schedule.ID, firingID, string(schedule.Platform), "Content generation failed", err)
		event.Outcome, event.Error = events.OutcomeSkipped, err.Error()
		s.touchLastRun(ctx, log, schedule.ID, job.FiredAt)
		return
	}

	scheduledAt := job.FiredAt
	scheduleID := schedule.ID
	post := &models.GeneratedPost{
		UserID:           schedule.UserID,
		AccountID:        account.ID,
		ScheduleID:       &scheduleID,
		FiringID:         firingID,
		Content:          text,
		Platform:         schedule.Platform,
		Status:           models.PostStatusScheduled,
		ScheduledAt:      &scheduledAt,
		AIGenerated:      true,
		GenerationPrompt: fmt.Sprintf("Auto-generated from schedule %s", schedule.Name),
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		s.abort(log, &event, string(schedule.Platform), "create post", err)
		return
	}
	event.PostID = post.ID

	update := s.publish(ctx, log, post, account)
	if err := s.store.UpdatePostStatus(ctx, post.ID, update); err != nil {
		// The post stays scheduled until the next startup sweep fails it.
		s.abort(log, &event, string(schedule.Platform), "record publish outcome", err)
		return
	}

	if update.Status == models.PostStatusPosted {
		event.Outcome = events.OutcomePosted
		log.Info("Post published",
			zap.Uint("post_id", post.ID),
			zap.String("platform_post_id", update.PlatformPostID))
	} else {
		event.Outcome, event.Error = events.OutcomeFailed, update.ErrorMessage
		log.Warn("Post failed",
			zap.Uint("post_id", post.ID),
			zap.String("error_message", update.ErrorMessage))
	}

	s.touchLastRun(ctx, log, schedule.ID, job.FiredAt)
}

func (s *Scheduler) publish(ctx context.Context, log *zap.Logger, post *models.GeneratedPost, account *models.PublishAccount) models.PostStatusUpdate {
	pubCtx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()

	result, err := s.dispatch.Publish(pubCtx, post, account)
	if err != nil {
		s.monitor.RecordPublishOutcome(string(post.Platform), false)
		return models.PostStatusUpdate{
			Status:       models.PostStatusFailed,
			ErrorMessage: publishReason(err),
		}
	}

	s.monitor.RecordPublishOutcome(string(post.Platform), true)
	postedAt := result.PublishedAt
	if postedAt.IsZero() {
		postedAt = s.clock.Now()
	}
	return models.PostStatusUpdate{
		Status:          models.PostStatusPosted,
		PostedAt:        &postedAt,
		PlatformPostID:  result.PostID,
		PlatformPostURL: result.URL,
	}
}

// publishReason is the text stored on a failed post; never empty.
func publishReason(err error) string {
	var pubErr *publisher.PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Reason()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "publish timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

func (s *Scheduler) touchLastRun(ctx context.Context, log *zap.Logger, scheduleID uint, ts time.Time) {
	if err := s.store.UpdateLastRun(ctx, scheduleID, ts); err != nil {
		log.Error("Failed to update last run", zap.Error(err))
	}
}

func (s *Scheduler) abort(log *zap.Logger, event *events.FiringEvent, platform, step string, err error) {
	log.Error("Firing aborted", zap.String("step", step), zap.Error(err))
	s.monitor.RecordFiringError(event.ScheduleID, event.FiringID, platform, "Firing aborted: "+step, err)
	event.Outcome, event.Error = events.OutcomeAborted, err.Error()
}
