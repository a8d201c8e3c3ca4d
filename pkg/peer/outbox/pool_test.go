package outbox

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/peer"
)

// recordingSender records every message and can be gated or made to fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []peer.Message
	err  error
	gate chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg peer.Message) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) Sent() []peer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]peer.Message(nil), s.sent...)
}

var _ = Describe("Outbox Pool", func() {
	var (
		sender *recordingSender
		origin peer.Origin
	)

	BeforeEach(func() {
		sender = &recordingSender{}
		origin = peer.Origin{DeviceID: "phone", Role: peer.RolePrimary}
	})

	It("requires a sender", func() {
		_, err := NewPool(&Config{Logger: logger.Nop()})
		Expect(err).To(HaveOccurred())
	})

	It("delivers queued messages in order with a single worker", func() {
		wp, err := NewPool(&Config{Sender: sender, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		first := origin.Hello()
		second := origin.CatalogRequest()
		Expect(wp.Enqueue(Job{Message: first})).To(BeTrue())
		Expect(wp.Enqueue(Job{Message: second})).To(BeTrue())

		// Drain the pool before asserting.
		wp.Close()

		sent := sender.Sent()
		Expect(sent).To(HaveLen(2))
		Expect(sent[0].MessageID).To(Equal(first.MessageID))
		Expect(sent[1].MessageID).To(Equal(second.MessageID))
	})

	It("drops jobs when the queue is full", func() {
		sender.gate = make(chan struct{})
		wp, err := NewPool(&Config{Sender: sender, QueueSize: 1, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		// The worker takes the first job and blocks on the gate; the second
		// fills the queue.
		Expect(wp.Enqueue(Job{Message: origin.Hello()})).To(BeTrue())
		Eventually(func() bool {
			return wp.Enqueue(Job{Message: origin.Hello()})
		}).Should(BeFalse())

		close(sender.gate)
		wp.Close()
	})

	It("swallows unreachable peers", func() {
		sender.err = peer.ErrUnreachable
		wp, err := NewPool(&Config{Sender: sender, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Enqueue(Job{Message: origin.Hello()})).To(BeTrue())
		wp.Close()
		Expect(sender.Sent()).To(BeEmpty())
	})

	It("logs other send failures and keeps working", func() {
		sender.err = errors.New("boom")
		wp, err := NewPool(&Config{Sender: sender, NumWorkers: 2, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.Enqueue(Job{Message: origin.Hello()})).To(BeTrue())
		Expect(wp.Enqueue(Job{Message: origin.Hello()})).To(BeTrue())
		wp.Close()
	})

	It("rejects jobs after Close and tolerates a second Close", func() {
		wp, err := NewPool(&Config{Sender: sender, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		wp.Close()
		wp.Close()
		Expect(wp.Enqueue(Job{Message: origin.Hello()})).To(BeFalse())
	})
})
