package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// blockingService runs until Stop, or returns startErr immediately.
type blockingService struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	done     chan struct{}
	once     sync.Once

	order *[]string
	name  string
	mu    *sync.Mutex
}

func newBlockingService(name string, order *[]string, mu *sync.Mutex) *blockingService {
	return &blockingService{done: make(chan struct{}), name: name, order: order, mu: mu}
}

func (s *blockingService) Start() error {
	s.started.Store(true)
	if s.startErr != nil {
		return s.startErr
	}
	<-s.done
	return nil
}

func (s *blockingService) Stop() {
	s.stopped.Store(true)
	if s.order != nil {
		s.mu.Lock()
		*s.order = append(*s.order, s.name)
		s.mu.Unlock()
	}
	s.once.Do(func() { close(s.done) })
}

func TestLifecycleStopsInReverseOrderOnCancel(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	var mu sync.Mutex
	var order []string
	relay := newBlockingService("relay", &order, &mu)
	health := newBlockingService("health", &order, &mu)
	lc.Add("relay", relay)
	lc.Add("health", health)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return relay.started.Load() && health.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, relay.stopped.Load())
	assert.True(t, health.stopped.Load())
	mu.Lock()
	assert.Equal(t, []string{"health", "relay"}, order)
	mu.Unlock()
}

func TestLifecycleReturnsServiceError(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	boom := errors.New("bind failed")
	failing := newBlockingService("relay", nil, nil)
	failing.startErr = boom
	other := newBlockingService("health", nil, nil)
	lc.Add("relay", failing)
	lc.Add("health", other)

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(context.Background())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service relay")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, other.stopped.Load())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}
