package services

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const mailboxBuffer = 1024

// Mailbox serializes work per conversation: one single-consumer queue per
// conversation id, consumed by a goroutine spawned on demand and torn down
// after an idle interval. Jobs for the same conversation run in FIFO
// arrival order; distinct conversations run in parallel.
type convQueue struct {
	ch chan func()
	// pending counts senders blocked mid-enqueue; the consumer must not
	// tear down while any are outstanding.
	pending int
}

type Mailbox struct {
	mu     sync.Mutex
	queues map[uuid.UUID]*convQueue
	idle   time.Duration

	wg sync.WaitGroup
}

func NewMailbox(idle time.Duration) *Mailbox {
	if idle <= 0 {
		idle = 2 * time.Minute
	}
	return &Mailbox{
		queues: make(map[uuid.UUID]*convQueue),
		idle:   idle,
	}
}

// Enqueue schedules a job on the conversation's queue, creating the
// consumer when absent.
func (m *Mailbox) Enqueue(conversationID uuid.UUID, job func()) {
	m.mu.Lock()
	q, ok := m.queues[conversationID]
	if !ok {
		q = &convQueue{ch: make(chan func(), mailboxBuffer)}
		m.queues[conversationID] = q
		m.wg.Add(1)
		go m.consume(conversationID, q)
	}

	select {
	case q.ch <- job:
		m.mu.Unlock()
	default:
		// Queue saturated: block outside the lock, registered as pending so
		// the idle teardown cannot race the send and strand the job.
		q.pending++
		m.mu.Unlock()
		log.Printf("⚠️ Conversation queue %s saturated, backpressuring", conversationID)
		q.ch <- job
		m.mu.Lock()
		q.pending--
		m.mu.Unlock()
	}
}

// ActiveQueues returns the number of live per-conversation consumers.
func (m *Mailbox) ActiveQueues() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// Wait blocks until all consumers have drained and exited. Useful in tests
// combined with a short idle interval.
func (m *Mailbox) Wait() {
	m.wg.Wait()
}

func (m *Mailbox) consume(conversationID uuid.UUID, q *convQueue) {
	defer m.wg.Done()
	timer := time.NewTimer(m.idle)
	defer timer.Stop()

	for {
		select {
		case job := <-q.ch:
			job()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.idle)
		case <-timer.C:
			m.mu.Lock()
			if len(q.ch) == 0 && q.pending == 0 {
				delete(m.queues, conversationID)
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()
			timer.Reset(m.idle)
		}
	}
}
