package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deepreport/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBrokerRegisterRejectsDuplicates(t *testing.T) {
	b := NewBroker()
	require.NoError(t, b.Register("t1", func(types.ProgressEvent) {}))
	assert.Error(t, b.Register("t1", func(types.ProgressEvent) {}))
	assert.Error(t, b.Register("", func(types.ProgressEvent) {}))
	assert.Error(t, b.Register("t2", nil))

	assert.True(t, b.Has("t1"))
	assert.Equal(t, 1, b.Len())

	b.Unregister("t1")
	b.Unregister("missing")
	assert.False(t, b.Has("t1"))
	assert.Zero(t, b.Len())
}

func TestRegistrationOnlyActsWhileCurrent(t *testing.T) {
	b := NewBroker()
	var stale int
	reg, err := b.Attach("t1", func(types.ProgressEvent) { stale++ })
	require.NoError(t, err)

	reg.Reporter().NodeStart("planning", "")
	assert.Equal(t, 1, stale)

	b.Unregister("t1")
	var calls int
	require.NoError(t, b.Register("t1", func(types.ProgressEvent) { calls++ }))

	reg.Detach()
	reg.Detach()
	reg.Reporter().Error(errors.New("late"))
	assert.True(t, b.Has("t1"))
	assert.Equal(t, 1, stale)
	assert.Zero(t, calls)

	assert.True(t, b.Report(types.ProgressEvent{Type: types.EventStateUpdate, TaskID: "t1"}))
	assert.Equal(t, 1, calls)

	own, err := b.Attach("t2", func(types.ProgressEvent) {})
	require.NoError(t, err)
	own.Detach()
	assert.False(t, b.Has("t2"))

	_, err = b.Attach("t1", func(types.ProgressEvent) {})
	assert.Error(t, err)
}

func TestBrokerReportRoutesByTask(t *testing.T) {
	b := NewBroker()
	var got []types.ProgressEvent
	require.NoError(t, b.Register("t1", func(ev types.ProgressEvent) { got = append(got, ev) }))

	assert.True(t, b.Report(types.ProgressEvent{Type: types.EventNodeStart, TaskID: "t1", Node: "planning"}))
	assert.False(t, b.Report(types.ProgressEvent{Type: types.EventNodeStart, TaskID: "other"}))

	require.Len(t, got, 1)
	assert.Equal(t, "planning", got[0].Node)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestBrokerReportRecoversFromPanic(t *testing.T) {
	b := NewBroker()
	require.NoError(t, b.Register("t1", func(types.ProgressEvent) { panic("boom") }))

	assert.NotPanics(t, func() {
		assert.True(t, b.Report(types.ProgressEvent{Type: types.EventStateUpdate, TaskID: "t1"}))
	})
}

func TestReporterHelpers(t *testing.T) {
	b := NewBroker()
	var got []types.ProgressEvent
	require.NoError(t, b.Register("t1", func(ev types.ProgressEvent) { got = append(got, ev) }))

	r := b.For("t1")
	r.NodeStart("prepare_section", "start")
	r.Step("prepare_section", 2, 6, "queries")
	r.State(types.StateSummary{Cursor: 1, TotalSections: 3})
	r.NodeEnd("prepare_section", "done")
	r.Error(errors.New("writer down"))

	require.Len(t, got, 5)
	for _, ev := range got {
		assert.Equal(t, "t1", ev.TaskID)
	}
	assert.Equal(t, types.EventStepProgress, got[1].Type)
	assert.Equal(t, 2, got[1].Step)
	assert.Equal(t, 6, got[1].Total)
	assert.Equal(t, types.StateSummary{Cursor: 1, TotalSections: 3}, got[2].Payload)
	assert.Equal(t, types.ErrorPayload{Message: "writer down"}, got[4].Payload)

	var nilReporter *Reporter
	assert.NotPanics(t, func() { nilReporter.NodeStart("x", "") })
}

func TestStreamStopsAfterTerminalEvent(t *testing.T) {
	s := NewStream(8)
	assert.True(t, s.Send(types.ProgressEvent{Type: types.EventNodeStart}))
	assert.True(t, s.Send(types.ProgressEvent{Type: types.EventComplete}))
	assert.False(t, s.Send(types.ProgressEvent{Type: types.EventError}))
	assert.False(t, s.Send(types.ProgressEvent{Type: types.EventNodeEnd}))

	var seen []types.EventType
	err := Consume(context.Background(), s.Events(), func(ev types.ProgressEvent) error {
		seen = append(seen, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.EventType{types.EventNodeStart, types.EventComplete}, seen)
}

func TestStreamSendDoesNotBlockAfterClose(t *testing.T) {
	s := NewStream(1)
	require.True(t, s.Send(types.ProgressEvent{Type: types.EventNodeStart}))

	blocked := make(chan bool)
	go func() {
		blocked <- s.Send(types.ProgressEvent{Type: types.EventNodeEnd})
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()
	s.Close()

	select {
	case ok := <-blocked:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Send stayed blocked after Close")
	}
	assert.False(t, s.Send(types.ProgressEvent{Type: types.EventComplete}))
}

func TestStreamManyProducers(t *testing.T) {
	s := NewStream(4)
	b := NewBroker()
	require.NoError(t, b.Register("t1", s.Callback()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Report(types.ProgressEvent{Type: types.EventStepProgress, TaskID: "t1"})
			}
		}()
	}
	go func() {
		wg.Wait()
		b.Report(types.ProgressEvent{Type: types.EventComplete, TaskID: "t1"})
	}()

	count := 0
	err := Consume(context.Background(), s.Events(), func(ev types.ProgressEvent) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 51, count)
}

func TestConsumeStopsOnContextAndCallbackError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Consume(ctx, make(chan types.ProgressEvent), func(types.ProgressEvent) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	events := make(chan types.ProgressEvent, 1)
	events <- types.ProgressEvent{Type: types.EventNodeStart}
	stop := errors.New("stop")
	err = Consume(context.Background(), events, func(types.ProgressEvent) error { return stop })
	assert.ErrorIs(t, err, stop)

	close(events)
	assert.NoError(t, Consume(context.Background(), events, func(types.ProgressEvent) error { return nil }))
}
