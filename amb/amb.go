// Package amb implements the async message broker (spec.md §4.6): a single
// consumer thread draining a bounded channel, with init/exit hooks and a
// non-blocking send_message entry point.
package amb

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/teris-io/shortid"

	"github.com/NVIDIA/ash/ch"
	"github.com/NVIDIA/ash/internal/nlog"
	"github.com/NVIDIA/ash/metrics"
)

// Status is the surface status vocabulary of spec.md §6. Stringification
// matches the names there verbatim, since log lines depend on it.
type Status int

const (
	Undefined Status = iota
	Success
	Pending
	InvalidChannelSize
	ThreadCreationError
	UnhandledException
	RelayError
	ChannelEmpty
	ChannelFull
	ChannelClosed
	ChannelTimeout
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Pending:
		return "Pending"
	case InvalidChannelSize:
		return "InvalidChannelSize"
	case ThreadCreationError:
		return "ThreadCreationError"
	case UnhandledException:
		return "UnhandledException"
	case RelayError:
		return "RelayError"
	case ChannelEmpty:
		return "ChannelEmpty"
	case ChannelFull:
		return "ChannelFull"
	case ChannelClosed:
		return "ChannelClosed"
	case ChannelTimeout:
		return "ChannelTimeout"
	default:
		return "Undefined"
	}
}

// FromChannelStatus maps a ch.Status onto the broker's surface vocabulary.
func FromChannelStatus(s ch.Status) Status {
	switch s {
	case ch.Success:
		return Success
	case ch.Empty:
		return ChannelEmpty
	case ch.Full:
		return ChannelFull
	case ch.Closed:
		return ChannelClosed
	case ch.Timeout:
		return ChannelTimeout
	default:
		return Undefined
	}
}

// ExitState records why the consumer thread stopped looping, per spec.md
// §4.6 step 2.
type ExitState int

const (
	ExitClosed ExitState = iota
	ExitChannelEmpty
	ExitChannelFull
	ExitChannelTimeout
	ExitUndefined
)

func (e ExitState) String() string {
	switch e {
	case ExitClosed:
		return "closed"
	case ExitChannelEmpty:
		return "ChannelEmpty"
	case ExitChannelFull:
		return "ChannelFull"
	case ExitChannelTimeout:
		return "ChannelTimeout"
	default:
		return "Undefined"
	}
}

// Config is a broker's (channel_capacity, msg_proc, init_hook, exit_hook,
// name) state, per spec.md §4.6.
type Config[M any] struct {
	ChannelCapacity int
	MsgProc         func(M)
	InitHook        func()
	ExitHook        func(ExitState)
	Name            string

	// Metrics, when non-nil, receives ash_broker_messages_total
	// observations labeled by this broker's Name. Optional.
	Metrics *metrics.Recorder
}

// Broker is the message broker (MB): exactly one consumer thread popping
// from its channel and invoking msg_proc, per spec.md §5.
type Broker[M any] struct {
	cfg       Config[M]
	channel   *ch.Channel[M]
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New initializes and starts a Broker: stores config, creates the channel
// (capacity normalized per spec.md §4.5), and spawns the consumer thread.
func New[M any](cfg Config[M]) (*Broker[M], error) {
	if cfg.MsgProc == nil {
		return nil, errors.New("amb: MsgProc is required")
	}
	if cfg.Name == "" {
		id, err := shortid.Generate()
		if err != nil {
			return nil, errors.WithMessage(err, "amb: generating broker name")
		}
		cfg.Name = "broker-" + id
	}

	b := &Broker[M]{cfg: cfg, channel: ch.New[M](cfg.ChannelCapacity)}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

// Name returns the broker's instance name (explicit or auto-generated).
func (b *Broker[M]) Name() string { return b.cfg.Name }

func (b *Broker[M]) run() {
	defer b.wg.Done()
	if b.cfg.InitHook != nil {
		b.cfg.InitHook()
	}

	exitState := ExitClosed
loop:
	for {
		m, status := b.channel.Pop()
		switch status {
		case ch.Success:
			b.cfg.MsgProc(m)
		case ch.Closed:
			break loop
		case ch.Empty:
			exitState = ExitChannelEmpty
			break loop
		case ch.Full:
			exitState = ExitChannelFull
			break loop
		case ch.Timeout:
			exitState = ExitChannelTimeout
			break loop
		default:
			exitState = ExitUndefined
			break loop
		}
	}

	if exitState != ExitClosed {
		nlog.Warningf("amb: broker %q consumer exiting abnormally: %s", b.cfg.Name, exitState)
	}
	if b.cfg.ExitHook != nil {
		b.cfg.ExitHook(exitState)
	}
}

// SendMessage performs a non-blocking try-push, mapping the channel status
// directly into the broker's return code.
func (b *Broker[M]) SendMessage(m M) Status {
	status := FromChannelStatus(b.channel.TryPush(m))
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.BrokerMessagesTotal.WithLabelValues(b.cfg.Name, status.String()).Inc()
	}
	return status
}

// Close closes the channel and joins the consumer thread. Idempotent.
func (b *Broker[M]) Close() {
	b.closeOnce.Do(func() {
		b.channel.Close()
		b.wg.Wait()
	})
}
