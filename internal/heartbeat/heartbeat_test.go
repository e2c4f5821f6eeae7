package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) sink(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) count(kind MessageKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func (c *collector) last(kind MessageKind) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Kind == kind {
			return c.msgs[i]
		}
	}
	return Message{}
}

func TestStartIsIdempotent(t *testing.T) {
	c := &collector{}
	s := NewSupervisor(10*time.Millisecond, 0, c.sink)
	defer s.Stop()

	assert.True(t, s.Start())
	assert.False(t, s.Start())
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool { return c.count(MsgHeartbeat) >= 3 }, time.Second, 5*time.Millisecond)
	hb := c.last(MsgHeartbeat)
	assert.Equal(t, int64(10), hb.TickMs)
	assert.Positive(t, hb.Goroutines)
}

func TestSetTickAcknowledged(t *testing.T) {
	c := &collector{}
	s := NewSupervisor(50*time.Millisecond, 0, c.sink)
	assert.ErrorIs(t, s.SetTick(20*time.Millisecond), ErrNotRunning)
	assert.Error(t, s.SetTick(0))

	s.Start()
	defer s.Stop()
	require.NoError(t, s.SetTick(5*time.Millisecond))

	assert.Eventually(t, func() bool { return c.count(MsgTickUpdated) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(5), c.last(MsgTickUpdated).TickMs)
	assert.Eventually(t, func() bool { return c.last(MsgHeartbeat).TickMs == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, s.Tick())
}

func TestStopAcknowledged(t *testing.T) {
	c := &collector{}
	s := NewSupervisor(10*time.Millisecond, 0, c.sink)
	s.Start()
	s.Stop()

	assert.False(t, s.Running())
	assert.Eventually(t, func() bool { return c.count(MsgStopped) == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.True(t, s.Start())
	s.Stop()
}

func TestStopForcesStuckWorker(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)

	s := NewSupervisor(5*time.Millisecond, 50*time.Millisecond, nil)
	s.sample = func() Message {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return Message{}
	}
	s.Start()
	<-entered

	start := time.Now()
	s.Stop()
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.False(t, s.Running())
}

func TestPendingSetTickDoesNotBlockSupervisor(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	s := NewSupervisor(5*time.Millisecond, 20*time.Millisecond, nil)
	s.sample = func() Message {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return Message{}
	}
	s.Start()
	<-entered

	// 第一个命令占满缓冲区，第二个会一直等到 worker 退出
	require.NoError(t, s.SetTick(time.Second))
	pending := make(chan error, 1)
	go func() { pending <- s.SetTick(2 * time.Second) }()

	assert.Eventually(t, func() bool { return s.Tick() == 2*time.Second }, time.Second, 5*time.Millisecond)
	queried := make(chan bool, 1)
	go func() { queried <- s.Running() }()
	select {
	case running := <-queried:
		assert.True(t, running)
	case <-time.After(time.Second):
		t.Fatal("Running blocked behind a pending SetTick")
	}

	s.Stop()
	assert.False(t, s.Running())
	close(release)
	select {
	case <-pending:
	case <-time.After(time.Second):
		t.Fatal("SetTick never returned after the worker exited")
	}
}

func TestWorkerCrashClearsHandle(t *testing.T) {
	c := &collector{}
	s := NewSupervisor(5*time.Millisecond, 0, c.sink)
	s.sample = func() Message { panic("sampler exploded") }
	s.Start()

	assert.Eventually(t, func() bool { return c.count(MsgError) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)
	assert.Contains(t, c.last(MsgError).Error, "sampler exploded")

	s.sample = sampleRuntime
	assert.True(t, s.Start())
	s.Stop()
}
