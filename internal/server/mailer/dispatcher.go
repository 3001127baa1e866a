package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/pinvault/internal/logging"
)

// Dispatcher delivers messages on a fixed pool of workers so that callers
// never wait on the mail backend. A full queue drops the message.
type Dispatcher struct {
	sender  Sender
	logger  logging.Logger
	queue   chan Message
	workers int
	timeout time.Duration

	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher; call Start to run its workers.
func NewDispatcher(sender Sender, workers, queueSize int, logger logging.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		sender:  sender,
		logger:  logger.With("module", "dispatcher"),
		queue:   make(chan Message, queueSize),
		workers: workers,
		timeout: 30 * time.Second,
	}
}

// Start launches the workers. They exit once Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	for msg := range d.queue {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		if err := d.sender.Send(sendCtx, msg); err != nil {
			d.logger.Error(ctx, "mail delivery failed", "worker", id, "to", msg.To, "error", err)
		}
		cancel()
	}
}

// Enqueue hands msg to the workers. It never blocks: it returns false when
// the queue is full or the dispatcher is stopped.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn(ctx, "mail dropped, dispatcher stopped", "to", msg.To)
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Warn(ctx, "mail dropped, queue full", "to", msg.To)
		return false
	}
}

// Stop closes the queue and waits for queued messages to be delivered.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
}
