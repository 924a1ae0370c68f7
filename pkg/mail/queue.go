package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// SendMailArgs is the job payload for one outbound email.
type SendMailArgs struct {
	Message Message `json:"message"`
}

// Kind returns the job kind for River.
func (SendMailArgs) Kind() string { return "send_mail" }

// InsertOpts pins every mail job to a single attempt.
func (SendMailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// sendMailWorker delivers queued mail through the wrapped sender.
type sendMailWorker struct {
	river.WorkerDefaults[SendMailArgs]
	sender Sender
}

func (w *sendMailWorker) Work(ctx context.Context, job *river.Job[SendMailArgs]) error {
	msg := job.Args.Message
	if err := w.sender.Send(ctx, msg); err != nil {
		slog.Error("Queued mail failed", "jobID", job.ID, "to", msg.To, "error", err)
		return err
	}
	slog.Info("Queued mail sent", "jobID", job.ID, "to", msg.To)
	return nil
}

// Queue is a Sender that hands messages to a River job queue backed by
// PostgreSQL. Send returns once the job is stored; delivery happens on a
// worker with exactly one attempt. The River tables must already exist.
type Queue struct {
	client *river.Client[pgx.Tx]
}

var _ Sender = (*Queue)(nil)

// NewQueue creates a Queue that delivers through sender with up to
// maxWorkers concurrent sends.
func NewQueue(pool *pgxpool.Pool, sender Sender, maxWorkers int) (*Queue, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &sendMailWorker{sender: sender})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return &Queue{client: client}, nil
}

// Start starts the queue workers.
func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop waits for running jobs and stops the workers.
func (q *Queue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

// Send validates msg and enqueues it.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	if err := Validate(msg); err != nil {
		return err
	}
	if _, err := q.client.Insert(ctx, SendMailArgs{Message: msg}, nil); err != nil {
		return fmt.Errorf("failed to queue mail: %w", err)
	}
	return nil
}
