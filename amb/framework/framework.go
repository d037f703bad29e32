// Package framework implements Framework Assembly (FA, spec.md §4.8):
// binds a posting policy (the degenerate synchronous pass-through, or the
// Async Relay Policy) to a Message Broker, exposing a single post/close
// entry point.
package framework

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/ash/amb"
	"github.com/NVIDIA/ash/amb/relay"
)

// Config assembles a broker with an optional relay. A nil Relay selects the
// synchronous degenerate policy (spec.md §4.7).
type Config[M any] struct {
	Broker amb.Config[M]
	Relay  *relay.Config
}

// Framework binds one Policy to one Broker, per spec.md §4.8.
type Framework[M any] struct {
	broker *amb.Broker[M]
	policy relay.Policy[M]
}

// Run initializes the broker and the policy, concurrently where they don't
// depend on each other (the relay's internal channel/mchain construction
// needs no broker handle yet), and propagates the first error via
// errgroup, mirroring the teacher's concurrent-start idiom for parallel
// joggers generalized to first-error propagation. On failure, whatever
// already started is torn down in reverse order.
func Run[M any](cfg Config[M]) (*Framework[M], error) {
	var (
		broker *amb.Broker[M]
		rl     *relay.Relay[M]
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		b, err := amb.New(cfg.Broker)
		if err != nil {
			return errors.WithMessage(err, "framework: starting broker")
		}
		broker = b
		return nil
	})
	if cfg.Relay != nil {
		g.Go(func() error {
			r, err := relay.New[M](*cfg.Relay)
			if err != nil {
				return errors.WithMessage(err, "framework: starting relay")
			}
			rl = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if broker != nil {
			broker.Close()
		}
		return nil, err
	}

	var policy relay.Policy[M]
	if rl != nil {
		rl.Start(relay.NewSync(broker))
		policy = rl
	} else {
		policy = relay.NewSync(broker)
	}
	return &Framework[M]{broker: broker, policy: policy}, nil
}

// Post delegates to the active policy.
func (f *Framework[M]) Post(env *relay.Envelope[M]) amb.Status { return f.policy.Post(env) }

// Close tears down in reverse-initialization order: the policy (relay)
// first, then the downstream broker, per spec.md §5 ("relay must be closed
// before the downstream broker").
func (f *Framework[M]) Close() {
	f.policy.Close()
	f.broker.Close()
}
