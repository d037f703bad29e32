// Package relay implements the async relay policy (ARP, spec.md §4.7): its
// own bounded channel, a relay thread, and an internal FIFO mchain of
// pending messages draining into a downstream broker with back-pressure
// reported per-message via callback. It also provides the degenerate
// synchronous policy (spec.md §4.7 "Synchronous policy").
package relay

import (
	"container/list"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teris-io/shortid"

	"github.com/NVIDIA/ash/amb"
	"github.com/NVIDIA/ash/ch"
	"github.com/NVIDIA/ash/internal/nlog"
	"github.com/NVIDIA/ash/metrics"
)

// Envelope wraps a caller payload with the control-block fields spec.md §6
// requires (flags + callback). Go composition replaces the original's
// fixed-offset embedded-control-block trick: callers don't need to embed
// anything, they just get one back from NewEnvelope.
type Envelope[M any] struct {
	ID       string
	Payload  M
	Callback func(M, amb.Status)

	pending  bool
	enqueued time.Time
}

// NewEnvelope wraps payload for posting to a Policy, assigning it an ID
// (mirroring the teacher's xaction ID-prefix idiom, generalized here via
// shortid rather than a fixed prefix table).
func NewEnvelope[M any](payload M, callback func(M, amb.Status)) *Envelope[M] {
	id, err := shortid.Generate()
	if err != nil {
		id = ""
	}
	return &Envelope[M]{ID: id, Payload: payload, Callback: callback}
}

func (e *Envelope[M]) notify(status amb.Status) {
	if e.Callback != nil {
		e.Callback(e.Payload, status)
	}
}

// Policy is the posting surface both policies implement.
type Policy[M any] interface {
	Post(env *Envelope[M]) amb.Status
	Close()
}

// Sync is the degenerate synchronous policy: post(m) forwards directly to
// broker.send_message(m). It does not use the envelope's callback — that
// mechanism is ARP-only per spec.md §6.
type Sync[M any] struct {
	broker *amb.Broker[M]
}

// NewSync builds a Sync policy atop broker.
func NewSync[M any](broker *amb.Broker[M]) *Sync[M] { return &Sync[M]{broker: broker} }

func (s *Sync[M]) Post(env *Envelope[M]) amb.Status { return s.broker.SendMessage(env.Payload) }

// Close is a no-op: Sync does not own the broker's lifecycle.
func (s *Sync[M]) Close() {}

// Config configures an async Relay.
type Config struct {
	// ChannelCapacity is the relay's own channel capacity. Zero uses
	// DefaultChannelCapacity (spec.md §4.7: "fixed capacity 32").
	ChannelCapacity int

	// Name labels this relay's metrics. Optional.
	Name string

	// Metrics, when non-nil, receives ash_relay_mchain_depth,
	// ash_relay_pending_total and ash_relay_pending_seconds observations.
	Metrics *metrics.Recorder
}

// DefaultChannelCapacity is spec.md §4.7's relay channel capacity.
const DefaultChannelCapacity = 32

// Relay is the Async Relay Policy: a relay thread draining its channel
// into an internal FIFO mchain, which it then drains into a downstream
// Policy, reporting Pending/Success/RelayError per message.
type Relay[M any] struct {
	channel *ch.Channel[*Envelope[M]]
	mchain  *list.List

	downstream Policy[M]
	wg         sync.WaitGroup
	closeOnce  sync.Once
	depth      atomic.Int32 // mchain length, updated alongside mchain for lock-free reads from MchainDepth

	name string
	rec  *metrics.Recorder
}

// New builds a Relay; Start must be called once to wire it to a downstream
// Policy and spawn the relay thread.
func New[M any](cfg Config) (*Relay[M], error) {
	capacity := cfg.ChannelCapacity
	if capacity == 0 {
		capacity = DefaultChannelCapacity
	}
	return &Relay[M]{
		channel: ch.New[*Envelope[M]](capacity),
		mchain:  list.New(),
		name:    cfg.Name,
		rec:     cfg.Metrics,
	}, nil
}

// Start wires the relay to its downstream policy and spawns the relay
// thread. Must be called exactly once, before any Post.
func (r *Relay[M]) Start(downstream Policy[M]) {
	r.downstream = downstream
	r.wg.Add(1)
	go r.run()
}

// Post enqueues env without blocking, mirroring amb.Broker.SendMessage.
func (r *Relay[M]) Post(env *Envelope[M]) amb.Status {
	return amb.FromChannelStatus(r.channel.TryPush(env))
}

// Close closes the relay's channel and joins the relay thread. Messages
// already buffered in the channel are still popped into the mchain and
// forwarded as far as the downstream accepts them; once the channel is
// drained the relay thread exits, and messages still in the mchain at that
// point are dropped without callback.
func (r *Relay[M]) Close() {
	r.closeOnce.Do(func() {
		r.channel.Close()
		r.wg.Wait()
	})
}

func (r *Relay[M]) run() {
	defer r.wg.Done()

	for {
		var (
			env    *Envelope[M]
			status ch.Status
		)
		if r.mchain.Len() > 0 {
			env, status = r.channel.TryPop()
		} else {
			env, status = r.channel.Pop()
		}

		switch status {
		case ch.Closed:
			return
		case ch.Success:
			env.enqueued = time.Now()
			r.mchain.PushBack(env)
			r.depth.Add(1)
			r.reportDepth()
			if r.mchain.Len() > 1 {
				env.pending = true
				env.notify(amb.Pending)
				r.reportPending()
			}
			if !r.drain() {
				return
			}
		case ch.Empty:
			// Only reachable when the mchain is non-empty (we only
			// try_pop in that case).
			if !r.drain() {
				return
			}
		default:
			nlog.Errorf("relay: unexpected channel status %v on pop", status)
			return
		}
	}
}

// drain walks the mchain head-to-tail, posting to the downstream policy.
// Returns false if a RelayError was encountered (the relay thread must
// exit per spec.md §4.7), true otherwise — including the back-pressure
// case, where it leaves the head in place and returns to the outer loop.
func (r *Relay[M]) drain() bool {
	for r.mchain.Len() > 0 {
		front := r.mchain.Front()
		head := front.Value.(*Envelope[M])

		switch status := r.downstream.Post(head); status {
		case amb.Success:
			r.mchain.Remove(front)
			r.depth.Add(-1)
			r.reportDepth()
			r.reportResidency(head)
			head.notify(amb.Success)
		case amb.ChannelFull:
			if !head.pending {
				head.pending = true
				head.notify(amb.Pending)
				r.reportPending()
			} else {
				runtime.Gosched()
			}
			return true
		default:
			head.notify(amb.RelayError)
			return false
		}
	}
	return true
}

// MchainDepth reports the current pending-message count, for metrics.
func (r *Relay[M]) MchainDepth() int { return int(r.depth.Load()) }

func (r *Relay[M]) reportDepth() {
	if r.rec != nil {
		r.rec.RelayMchainDepth.WithLabelValues(r.name).Set(float64(r.depth.Load()))
	}
}

func (r *Relay[M]) reportPending() {
	if r.rec != nil {
		r.rec.RelayPendingTotal.WithLabelValues(r.name).Inc()
	}
}

func (r *Relay[M]) reportResidency(env *Envelope[M]) {
	if r.rec != nil && !env.enqueued.IsZero() {
		r.rec.RelayPendingSeconds.WithLabelValues(r.name).Observe(time.Since(env.enqueued).Seconds())
	}
}
