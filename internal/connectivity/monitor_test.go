package connectivity

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestMonitor_SetOnline_PublishesEdgesOnly(t *testing.T) {
	m := NewMonitor(func(context.Context) bool { return true }, time.Hour, testLogger())
	transitions := m.Transitions()

	m.SetOnline(true)
	select {
	case online := <-transitions:
		assert.True(t, online)
	default:
		t.Fatal("expected a transition")
	}

	// Same state again: no edge, nothing published.
	m.SetOnline(true)
	select {
	case <-transitions:
		t.Fatal("repeated state must not publish")
	default:
	}

	m.SetOnline(false)
	select {
	case online := <-transitions:
		assert.False(t, online)
	default:
		t.Fatal("expected offline transition")
	}

	assert.False(t, m.Online())
}

func TestMonitor_Run_ProbesOnStartAndInterval(t *testing.T) {
	var calls atomic.Int32
	probe := func(context.Context) bool {
		calls.Add(1)
		return true
	}

	m := NewMonitor(probe, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, m.Online())
}

func TestMonitor_Run_DetectsOutage(t *testing.T) {
	var reachable atomic.Bool
	reachable.Store(true)
	probe := func(context.Context) bool { return reachable.Load() }

	m := NewMonitor(probe, 10*time.Millisecond, testLogger())
	transitions := m.Transitions()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// First probe reports online.
	select {
	case online := <-transitions:
		require.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("no startup transition")
	}

	reachable.Store(false)
	select {
	case online := <-transitions:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("outage not detected")
	}
}
