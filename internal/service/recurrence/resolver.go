// Package recurrence turns a schedule's cadence and time-of-day slots into
// independent triggers, one per slot.
//
// Each (kind, slot) pair maps to a standard five-field cron spec:
//
//	hourly  M * * * *   (slot hour ignored)
//	daily   M H * * *
//	weekly  M H * * 1   (always Monday, frequency value ignored)
//	custom  no trigger
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

type Kind string

const (
	Hourly Kind = "hourly"
	Daily  Kind = "daily"
	Weekly Kind = "weekly"
	Custom Kind = "custom"
)

var (
	ErrMalformedSlot         = errors.New("malformed time slot")
	ErrUnsupportedRecurrence = errors.New("unsupported recurrence")
)

// SlotError reports a single slot that could not be resolved. It never
// prevents the other slots of the same schedule from being armed.
type SlotError struct {
	Slot string
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %q: %v", e.Slot, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

type Slot struct {
	Hour   int
	Minute int
}

// String returns the canonical HH:MM form used in job identities.
func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// ParseSlot accepts H:MM or HH:MM with hour 0-23 and minute 0-59.
func ParseSlot(raw string) (Slot, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return Slot{}, errors.Wrapf(ErrMalformedSlot, "expected HH:MM, got %q", raw)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Slot{}, errors.Wrapf(ErrMalformedSlot, "hour out of range in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Slot{}, errors.Wrapf(ErrMalformedSlot, "minute out of range in %q", raw)
	}

	return Slot{Hour: hour, Minute: minute}, nil
}

// Trigger is the resolved firing rule for one (schedule, slot) identity.
type Trigger struct {
	ScheduleID uint
	Slot       string
	Kind       Kind
	Spec       string

	schedule cron.Schedule
}

// Next returns the first instant strictly after t.
func (t Trigger) Next(after time.Time) time.Time {
	return t.schedule.Next(after)
}

type Resolver struct {
	tzPrefix string
}

// NewResolver builds a resolver whose triggers are evaluated in the given
// IANA zone. "Local" or "" uses the process zone.
func NewResolver(timezone string) (*Resolver, error) {
	timezone = strings.TrimSpace(timezone)
	if timezone == "" || timezone == "Local" {
		return &Resolver{}, nil
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", timezone)
	}
	return &Resolver{tzPrefix: "CRON_TZ=" + timezone + " "}, nil
}

// Resolve produces one trigger per distinct valid slot. Malformed slots are
// reported in slotErrs and skipped. A kind without a resolution rule returns
// ErrUnsupportedRecurrence and no triggers.
func (r *Resolver) Resolve(scheduleID uint, kind Kind, param *int, slots []string) (triggers []Trigger, slotErrs []*SlotError, err error) {
	switch kind {
	case Hourly, Daily, Weekly:
	default:
		return nil, nil, errors.Wrapf(ErrUnsupportedRecurrence, "kind %q", kind)
	}

	seen := make(map[string]struct{}, len(slots))
	for _, raw := range slots {
		slot, perr := ParseSlot(raw)
		if perr != nil {
			slotErrs = append(slotErrs, &SlotError{Slot: raw, Err: perr})
			continue
		}
		key := slot.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		spec := r.tzPrefix + cronSpec(kind, slot)
		sched, perr := cron.ParseStandard(spec)
		if perr != nil {
			slotErrs = append(slotErrs, &SlotError{Slot: raw, Err: errors.Mark(perr, ErrMalformedSlot)})
			continue
		}

		triggers = append(triggers, Trigger{
			ScheduleID: scheduleID,
			Slot:       key,
			Kind:       kind,
			Spec:       spec,
			schedule:   sched,
		})
	}

	return triggers, slotErrs, nil
}

func cronSpec(kind Kind, slot Slot) string {
	switch kind {
	case Hourly:
		return fmt.Sprintf("%d * * * *", slot.Minute)
	case Weekly:
		return fmt.Sprintf("%d %d * * 1", slot.Minute, slot.Hour)
	default:
		return fmt.Sprintf("%d %d * * *", slot.Minute, slot.Hour)
	}
}
