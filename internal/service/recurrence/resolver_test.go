package recurrence

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUTCResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver("UTC")
	require.NoError(t, err)
	return r
}

func TestParseSlot(t *testing.T) {
	tests := []struct {
		raw     string
		want    Slot
		wantErr bool
	}{
		{"09:00", Slot{9, 0}, false},
		{"9:05", Slot{9, 5}, false},
		{"23:59", Slot{23, 59}, false},
		{" 13:00 ", Slot{13, 0}, false},
		{"24:00", Slot{}, true},
		{"12:60", Slot{}, true},
		{"12", Slot{}, true},
		{"12:5", Slot{}, true},
		{"ab:cd", Slot{}, true},
		{"", Slot{}, true},
		{"-1:30", Slot{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSlot(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedSlot))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_DailyFiresOncePerDay(t *testing.T) {
	r := newUTCResolver(t)

	triggers, slotErrs, err := r.Resolve(7, Daily, nil, []string{"09:00"})
	require.NoError(t, err)
	require.Empty(t, slotErrs)
	require.Len(t, triggers, 1)
	assert.Equal(t, uint(7), triggers[0].ScheduleID)
	assert.Equal(t, "09:00", triggers[0].Slot)

	cur := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		next := triggers[0].Next(cur)
		assert.Equal(t, 9, next.Hour())
		assert.Equal(t, 0, next.Minute())
		if i > 0 {
			assert.Equal(t, 24*time.Hour, next.Sub(cur))
		}
		cur = next
	}
}

func TestResolve_HourlyIgnoresHour(t *testing.T) {
	r := newUTCResolver(t)

	triggers, _, err := r.Resolve(1, Hourly, nil, []string{"17:15"})
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	from := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	first := triggers[0].Next(from)
	assert.Equal(t, time.Date(2026, 3, 1, 2, 15, 0, 0, time.UTC), first)
	assert.Equal(t, time.Hour, triggers[0].Next(first).Sub(first))
}

func TestResolve_WeeklyIsMonday(t *testing.T) {
	r := newUTCResolver(t)
	three := 3

	triggers, _, err := r.Resolve(1, Weekly, &three, []string{"08:30"})
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	// 2026-03-04 is a Wednesday.
	next := triggers[0].Next(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC), next)
	assert.Equal(t, 7*24*time.Hour, triggers[0].Next(next).Sub(next))
}

func TestResolve_CustomUnsupported(t *testing.T) {
	r := newUTCResolver(t)

	triggers, slotErrs, err := r.Resolve(1, Custom, nil, []string{"09:00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedRecurrence))
	assert.Empty(t, triggers)
	assert.Empty(t, slotErrs)
}

func TestResolve_MalformedSlotSkippedOnly(t *testing.T) {
	r := newUTCResolver(t)

	triggers, slotErrs, err := r.Resolve(3, Daily, nil, []string{"09:00", "25:00", "nope", "18:45"})
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "09:00", triggers[0].Slot)
	assert.Equal(t, "18:45", triggers[1].Slot)

	require.Len(t, slotErrs, 2)
	assert.Equal(t, "25:00", slotErrs[0].Slot)
	assert.True(t, errors.Is(slotErrs[1], ErrMalformedSlot))
}

func TestResolve_EmptyAndDuplicateSlots(t *testing.T) {
	r := newUTCResolver(t)

	triggers, _, err := r.Resolve(3, Daily, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, triggers)

	triggers, _, err = r.Resolve(3, Daily, nil, []string{"9:00", "09:00"})
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}

func TestResolver_Timezone(t *testing.T) {
	r, err := NewResolver("Asia/Tokyo")
	require.NoError(t, err)

	triggers, _, err := r.Resolve(1, Daily, nil, []string{"09:00"})
	require.NoError(t, err)
	require.Len(t, triggers, 1)

	next := triggers[0].Next(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), next.UTC())

	_, err = NewResolver("Not/AZone")
	assert.Error(t, err)
}
