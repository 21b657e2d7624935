package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSink_Emit(t *testing.T) {
	fc := &fakeConn{}
	sink := newNATSSink(fc, "postpilot.firings", zap.NewNop())

	firedAt := time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC)
	err := sink.Emit(context.Background(), FiringEvent{
		FiringID:   "f-1",
		ScheduleID: 4,
		UserID:     2,
		Slot:       "13:00",
		Platform:   "twitter",
		Outcome:    OutcomePosted,
		PostID:     9,
		FiredAt:    firedAt,
	})
	require.NoError(t, err)

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, "postpilot.firings.posted", fc.subjects[0])

	var got FiringEvent
	require.NoError(t, json.Unmarshal(fc.payloads[0], &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "f-1", got.FiringID)
	assert.Equal(t, uint(9), got.PostID)
	assert.True(t, firedAt.Equal(got.FiredAt))

	require.NoError(t, sink.Close())
	assert.True(t, fc.drained)
}

func TestNATSSink_PublishError(t *testing.T) {
	sink := newNATSSink(&fakeConn{err: errors.New("nats: connection closed")}, "p", zap.NewNop())
	err := sink.Emit(context.Background(), FiringEvent{Outcome: OutcomeFailed})
	assert.ErrorContains(t, err, "connection closed")
}

func TestNoopSink(t *testing.T) {
	var s Sink = NewNoopSink()
	assert.NoError(t, s.Emit(context.Background(), FiringEvent{}))
	assert.NoError(t, s.Close())
}
