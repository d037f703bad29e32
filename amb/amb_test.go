package amb_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/ash/amb"
)

var _ = Describe("Broker", func() {
	var (
		mu       sync.Mutex
		received []int
	)

	collect := func(m int) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, m)
	}

	snapshot := func() []int {
		mu.Lock()
		defer mu.Unlock()
		out := make([]int, len(received))
		copy(out, received)
		return out
	}

	BeforeEach(func() {
		mu.Lock()
		received = nil
		mu.Unlock()
	})

	Describe("lifecycle", func() {
		It("invokes init_hook before the first message and exit_hook after close", func() {
			var initCalled bool
			var exitState amb.ExitState
			var exitCalled sync.WaitGroup
			exitCalled.Add(1)

			b, err := amb.New(amb.Config[int]{
				ChannelCapacity: 4,
				MsgProc:         collect,
				InitHook:        func() { initCalled = true },
				ExitHook: func(st amb.ExitState) {
					exitState = st
					exitCalled.Done()
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(b.SendMessage(1)).To(Equal(amb.Success))
			b.Close()
			exitCalled.Wait()

			Expect(initCalled).To(BeTrue())
			Expect(exitState).To(Equal(amb.ExitClosed))
			Expect(snapshot()).To(Equal([]int{1}))
		})

		It("delivers messages in post order", func() {
			b, err := amb.New(amb.Config[int]{ChannelCapacity: 64, MsgProc: collect})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 20; i++ {
				Expect(b.SendMessage(i)).To(Equal(amb.Success))
			}
			b.Close()

			want := make([]int, 20)
			for i := range want {
				want[i] = i
			}
			Expect(snapshot()).To(Equal(want))
		})

		It("rejects new messages after close without new msg_proc invocations", func() {
			b, err := amb.New(amb.Config[int]{ChannelCapacity: 4, MsgProc: collect})
			Expect(err).NotTo(HaveOccurred())
			b.Close()

			Expect(b.SendMessage(1)).To(Equal(amb.ChannelClosed))
			Consistently(snapshot, 50*time.Millisecond).Should(BeEmpty())
		})

		It("is idempotent on repeated Close", func() {
			b, err := amb.New(amb.Config[int]{ChannelCapacity: 2, MsgProc: collect})
			Expect(err).NotTo(HaveOccurred())
			b.Close()
			Expect(func() { b.Close() }).NotTo(Panic())
		})
	})

	Describe("New", func() {
		It("requires a MsgProc", func() {
			_, err := amb.New(amb.Config[int]{ChannelCapacity: 2})
			Expect(err).To(HaveOccurred())
		})

		It("assigns a generated name when none is given", func() {
			b, err := amb.New(amb.Config[int]{ChannelCapacity: 2, MsgProc: collect})
			Expect(err).NotTo(HaveOccurred())
			defer b.Close()
			Expect(b.Name()).NotTo(BeEmpty())
		})
	})
})
