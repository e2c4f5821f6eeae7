// Package heartbeat runs a background ticker that reports process vitals. The
// supervisor talks to its worker only through channels.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"gatebot/internal/logger"
)

// ErrNotRunning is returned by SetTick when no worker is running.
var ErrNotRunning = errors.New("heartbeat worker not running")

const (
	DefaultTick  = time.Second
	DefaultGrace = 300 * time.Millisecond
)

var log = logger.Named("heartbeat")

type MessageKind string

const (
	MsgHeartbeat   MessageKind = "heartbeat"
	MsgStopped     MessageKind = "stopped"
	MsgTickUpdated MessageKind = "tick-updated"
	MsgError       MessageKind = "error"
)

// Message is emitted by the worker.
type Message struct {
	Kind       MessageKind `json:"kind"`
	Seq        uint64      `json:"seq,omitempty"`
	TickMs     int64       `json:"tick_ms"`
	Goroutines int         `json:"goroutines,omitempty"`
	HeapBytes  uint64      `json:"heap_bytes,omitempty"`
	Error      string      `json:"error,omitempty"`
	At         time.Time   `json:"at"`
}

type commandKind int

const (
	cmdStop commandKind = iota
	cmdSetTick
)

type command struct {
	kind commandKind
	tick time.Duration
}

// Sink receives worker messages. It is called from the supervisor's relay
// goroutine and must not block for long.
type Sink func(Message)

// handle is one running worker.
type handle struct {
	cmds   chan command
	cancel context.CancelFunc
	done   chan struct{}
}

type Supervisor struct {
	mu     sync.Mutex
	cur    *handle
	tick   time.Duration
	grace  time.Duration
	sink   Sink
	sample func() Message
}

func NewSupervisor(tick, grace time.Duration, sink Sink) *Supervisor {
	if tick <= 0 {
		tick = DefaultTick
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if sink == nil {
		sink = func(Message) {}
	}
	return &Supervisor{tick: tick, grace: grace, sink: sink, sample: sampleRuntime}
}

// Start launches the worker unless one is already running. It reports whether
// a new worker was created.
func (s *Supervisor) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		cmds:   make(chan command, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	out := make(chan Message, 16)
	s.cur = h

	go runWorker(ctx, h, s.tick, s.sample, out)
	go s.relay(h, out)
	log.Infof("worker started tick=%s", s.tick)
	return true
}

// Stop asks the worker to stop, waits up to the grace period and then cancels
// it. The handle is released either way.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	h := s.cur
	s.cur = nil
	s.mu.Unlock()
	if h == nil {
		return
	}

	select {
	case h.cmds <- command{kind: cmdStop}:
	default:
	}
	select {
	case <-h.done:
	case <-time.After(s.grace):
		log.Warnf("worker did not stop within %s, cancelling", s.grace)
	}
	h.cancel()
}

// SetTick forwards a new interval to the running worker. The send happens
// outside the lock, so a busy worker never stalls Running, Stop or Tick.
func (s *Supervisor) SetTick(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("tick must be positive, got %s", d)
	}
	s.mu.Lock()
	s.tick = d
	h := s.cur
	s.mu.Unlock()
	if h == nil {
		return ErrNotRunning
	}
	select {
	case h.cmds <- command{kind: cmdSetTick, tick: d}:
		return nil
	case <-h.done:
		return ErrNotRunning
	}
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

func (s *Supervisor) Tick() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// relay forwards worker output to the sink and clears the handle when the
// worker reports a crash. There is no automatic restart.
func (s *Supervisor) relay(h *handle, out <-chan Message) {
	for msg := range out {
		if msg.Kind == MsgError {
			log.Errorf("worker crashed: %s", msg.Error)
			s.mu.Lock()
			if s.cur == h {
				s.cur = nil
			}
			s.mu.Unlock()
		}
		s.sink(msg)
	}
}

func runWorker(ctx context.Context, h *handle, tick time.Duration, sample func() Message, out chan<- Message) {
	defer close(out)
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			out <- Message{Kind: MsgError, Error: fmt.Sprint(r), At: time.Now()}
		}
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.cmds:
			switch cmd.kind {
			case cmdStop:
				send(ctx, out, Message{Kind: MsgStopped, TickMs: tick.Milliseconds(), At: time.Now()})
				return
			case cmdSetTick:
				tick = cmd.tick
				ticker.Reset(tick)
				send(ctx, out, Message{Kind: MsgTickUpdated, TickMs: tick.Milliseconds(), At: time.Now()})
			}
		case now := <-ticker.C:
			seq++
			msg := sample()
			msg.Kind = MsgHeartbeat
			msg.Seq = seq
			msg.TickMs = tick.Milliseconds()
			msg.At = now
			send(ctx, out, msg)
		}
	}
}

func send(ctx context.Context, out chan<- Message, msg Message) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func sampleRuntime() Message {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Message{Goroutines: runtime.NumGoroutine(), HeapBytes: ms.HeapAlloc}
}
