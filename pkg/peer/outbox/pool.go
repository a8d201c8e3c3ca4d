// Package outbox provides an asynchronous worker pool that delivers sync
// messages to the peer.
//
// The pool decouples network sends from the node's owner loop so that a slow
// or absent peer never stalls local operations. Delivery is at most once: a
// message that cannot be sent, or that arrives when the queue is full, is
// dropped.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/peer"
)

var (
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
	defaultSendTimeout       = 30 * time.Second
)

// Sender is the part of peer.Channel the pool needs.
type Sender interface {
	Send(ctx context.Context, msg peer.Message) error
}

// Job is a unit of work for the outbox to deliver.
type Job struct {
	Message peer.Message
}

// Config is the configuration options for the outbox pool.
type Config struct {
	// Sender delivers messages to the peer.
	Sender Sender

	// NumWorkers is the number of background workers in the pool. A single
	// worker preserves send order.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// SendTimeout bounds each delivery attempt (defaults to 30s).
	SendTimeout time.Duration

	Logger *slog.Logger
}

// Pool delivers sync messages asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Sender == nil {
		return nil, errors.New("outbox requires a sender")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.SendTimeout == 0 {
		c.SendTimeout = defaultSendTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for delivery.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("sync message queued",
			"kind", job.Message.Kind,
			"message_id", job.Message.MessageID,
		)
		return true
	default:
		p.logger.Error("sync message not queued, queue full, message dropped",
			"kind", job.Message.Kind,
			"message_id", job.Message.MessageID,
		)
		return false
	}
}

// Close signals workers to stop and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("outbox worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("outbox worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.SendTimeout)
	defer cancel()

	err := p.config.Sender.Send(ctx, job.Message)
	switch {
	case err == nil:
		p.logger.Debug("sync message sent",
			"kind", job.Message.Kind,
			"message_id", job.Message.MessageID,
		)
	case errors.Is(err, peer.ErrUnreachable), errors.Is(err, peer.ErrClosed):
		p.logger.Info("peer unreachable, sync message dropped",
			"kind", job.Message.Kind,
			"message_id", job.Message.MessageID,
		)
	default:
		p.logger.Error("sync message send failed",
			"kind", job.Message.Kind,
			"message_id", job.Message.MessageID,
			"error", err,
		)
	}
}
