package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

// AuditRecord describes one committed mutation for the audit trail.
type AuditRecord struct {
	ActorID    string    `json:"actorId"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resourceId"`
	BoardID    string    `json:"boardId,omitempty"`
	Time       time.Time `json:"time"`
}

// AuditTrail writes committed mutations to a storage queue. Delivery is
// asynchronous and best-effort: records are handed to a small worker pool
// and dropped with a log line when the buffer is saturated, so the request
// path never blocks on the queue.
type AuditTrail struct {
	queue   *azqueue.QueueClient
	logger  *log.Logger
	jobs    chan AuditRecord
	timeout time.Duration

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewAuditTrail creates an AuditTrail and starts its workers.
func NewAuditTrail(connStr, queueName string, workers, buffer int, timeout time.Duration, logger *log.Logger) (*AuditTrail, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	t := &AuditTrail{
		queue:   q,
		logger:  logger,
		jobs:    make(chan AuditRecord, buffer),
		timeout: timeout,
	}
	for i := 0; i < workers; i++ {
		t.wg.Add(1)
		go t.worker(i)
	}
	return t, nil
}

// Record hands an audit record to the worker pool. It never blocks; a full
// buffer drops the record.
func (t *AuditTrail) Record(rec AuditRecord) {
	if t == nil {
		return
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	select {
	case t.jobs <- rec:
	default:
		t.logger.Warnf("audit buffer saturated, dropping record: %s %s %s", rec.ActorID, rec.Action, rec.ResourceID)
	}
}

func (t *AuditTrail) worker(id int) {
	defer t.wg.Done()
	for rec := range t.jobs {
		data, err := json.Marshal(rec)
		if err != nil {
			t.logger.Errorf("audit marshal failed: %v", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		_, err = t.queue.EnqueueMessage(ctx, string(data), nil)
		cancel()
		if err != nil {
			t.logger.Errorf("audit enqueue failed, worker: %d, action: %s, err: %v", id, rec.Action, err)
		}
	}
}

// Close stops the workers after draining buffered records.
func (t *AuditTrail) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		close(t.jobs)
		t.wg.Wait()
	})
}
