package decision

import (
	"context"
	"sync"
	"time"

	"github.com/procyon-projects/chrono"

	"github.com/agentauth/consent-pdp/model"
)

// WriteBehindQueue decouples decisions from the durable audit store. The
// decision path only appends to the in-memory queue, a scheduled task
// flushes batches to the store in the background.
type WriteBehindQueue struct {
	mutex     sync.Mutex
	pending   []model.Authorization
	capacity  int
	batchSize int
	store     AuthorizationStore
	scheduler chrono.TaskScheduler
}

func NewWriteBehindQueue(store AuthorizationStore, capacity int, batchSize int) *WriteBehindQueue {
	queue := new(WriteBehindQueue)
	queue.pending = []model.Authorization{}
	queue.capacity = capacity
	queue.batchSize = batchSize
	queue.store = store
	return queue
}

// Enqueue appends an audit record. When the queue is full the oldest
// record is dropped, losing an audit entry is preferred over blocking or
// failing a live decision.
func (queue *WriteBehindQueue) Enqueue(authorization model.Authorization) {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if len(queue.pending) >= queue.capacity {
		logger.Warnf("Authorization queue is full, dropping the oldest record %s.", queue.pending[0].AuthorizationCode)
		queue.pending = queue.pending[1:]
	}
	queue.pending = append(queue.pending, authorization)
}

func (queue *WriteBehindQueue) Len() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	return len(queue.pending)
}

// Start schedules the periodic flush.
func (queue *WriteBehindQueue) Start(interval time.Duration) error {
	queue.scheduler = chrono.NewDefaultTaskScheduler()
	_, err := queue.scheduler.ScheduleAtFixedRate(func(ctx context.Context) {
		queue.Flush(ctx)
	}, interval)
	return err
}

// Flush writes one batch to the store. A failed batch is logged and
// dropped, the decision itself already happened and must not be replayed.
func (queue *WriteBehindQueue) Flush(ctx context.Context) int {
	batch := queue.takeBatch()
	if len(batch) == 0 {
		return 0
	}

	if err := queue.store.UpsertAuthorizations(ctx, batch); err != nil {
		logger.Warnf("Was not able to flush %d authorization records. Err: %v", len(batch), err)
		return 0
	}
	logger.Debugf("Flushed %d authorization records.", len(batch))
	return len(batch)
}

// Shutdown stops the scheduler and drains everything still pending, up
// to the given timeout.
func (queue *WriteBehindQueue) Shutdown(timeout time.Duration) {
	if queue.scheduler != nil {
		<-queue.scheduler.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for queue.Len() > 0 && ctx.Err() == nil {
		if queue.Flush(ctx) == 0 {
			return
		}
	}
}

func (queue *WriteBehindQueue) takeBatch() []model.Authorization {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	size := queue.batchSize
	if size > len(queue.pending) {
		size = len(queue.pending)
	}
	batch := make([]model.Authorization, size)
	copy(batch, queue.pending[:size])
	queue.pending = queue.pending[size:]
	return batch
}
