package relay_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/ash/amb"
	"github.com/NVIDIA/ash/amb/relay"
)

type event struct {
	id     string
	status amb.Status
}

func newHarness(channelCapacity int, sleep time.Duration) (*amb.Broker[int], *relay.Relay[int], *sync.Mutex, *[]int, *[]event) {
	var (
		mu       sync.Mutex
		received []int
		events   []event
	)
	broker, err := amb.New(amb.Config[int]{
		ChannelCapacity: channelCapacity,
		MsgProc: func(m int) {
			if sleep > 0 {
				time.Sleep(sleep)
			}
			mu.Lock()
			received = append(received, m)
			mu.Unlock()
		},
	})
	Expect(err).NotTo(HaveOccurred())

	r, err := relay.New[int](relay.Config{ChannelCapacity: 64})
	Expect(err).NotTo(HaveOccurred())
	r.Start(relay.NewSync(broker))

	return broker, r, &mu, &received, &events
}

var _ = Describe("Relay", func() {
	Describe("Sync policy", func() {
		It("forwards directly to the downstream broker", func() {
			broker, err := amb.New(amb.Config[int]{ChannelCapacity: 4, MsgProc: func(int) {}})
			Expect(err).NotTo(HaveOccurred())
			defer broker.Close()

			sync := relay.NewSync(broker)
			env := relay.NewEnvelope(7, nil)
			Expect(sync.Post(env)).To(Equal(amb.Success))
		})
	})

	Describe("ordering", func() {
		It("delivers messages to the downstream broker in post order", func() {
			broker, r, mu, received, _ := newHarness(64, 0)
			defer r.Close()
			defer broker.Close()

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				env := relay.NewEnvelope(i, func(int, amb.Status) { wg.Done() })
				for r.Post(env) != amb.Success {
					time.Sleep(time.Millisecond)
				}
			}
			wg.Wait()

			mu.Lock()
			defer mu.Unlock()
			want := make([]int, 50)
			for i := range want {
				want[i] = i
			}
			Expect(*received).To(Equal(want))
		})
	})

	Describe("back-pressure (S6)", func() {
		It("reports Pending before eventual Success, preserving order", func() {
			broker, r, mu, received, _ := newHarness(2, 30*time.Millisecond)
			defer r.Close()
			defer broker.Close()

			var (
				statusMu sync.Mutex
				final    = make([]amb.Status, 10)
				sawPend  = make([]bool, 10)
				wg       sync.WaitGroup
			)
			for i := 0; i < 10; i++ {
				i := i
				wg.Add(1)
				env := relay.NewEnvelope(i, func(_ int, st amb.Status) {
					statusMu.Lock()
					if st == amb.Pending {
						sawPend[i] = true
					} else {
						final[i] = st
						wg.Done()
					}
					statusMu.Unlock()
				})
				for r.Post(env) != amb.Success {
					time.Sleep(time.Millisecond)
				}
			}
			wg.Wait()

			for i := 2; i < 10; i++ {
				Expect(sawPend[i]).To(BeTrue(), "message %d should have seen Pending", i)
			}
			for i := 0; i < 10; i++ {
				Expect(final[i]).To(Equal(amb.Success))
			}

			mu.Lock()
			defer mu.Unlock()
			want := make([]int, 10)
			for i := range want {
				want[i] = i
			}
			Expect(*received).To(Equal(want))
		})
	})

	Describe("shutdown", func() {
		It("stops invoking msg_proc after the downstream broker is closed", func() {
			broker, r, mu, received, _ := newHarness(64, 0)

			env := relay.NewEnvelope(1, nil)
			for r.Post(env) != amb.Success {
				time.Sleep(time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)

			r.Close()
			broker.Close()

			mu.Lock()
			n := len(*received)
			mu.Unlock()
			Expect(n).To(Equal(1))
		})
	})
})
