// Package nats carries parse jobs from the API to the worker over core NATS.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
	"github.com/kirillkom/glossary-rag-gateway/internal/infrastructure/resilience"
)

const (
	clientName        = "glossary-rag-gateway"
	parseWorkersGroup = "parse-workers"
	drainFlushTimeout = 5 * time.Second
)

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	// Executor retries publishes that fail on a lost connection. Nil publishes once.
	Executor *resilience.Executor
}

// Queue publishes parse jobs and, in the worker, consumes them as a member of
// the parse-workers queue group.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string, opts Options) (*Queue, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, executor: opts.Executor}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// DispatchParse hands the job to the worker pool.
func (q *Queue) DispatchParse(ctx context.Context, job domain.ParseJob) error {
	return q.PublishParseRequested(ctx, job)
}

func (q *Queue) PublishParseRequested(ctx context.Context, job domain.ParseJob) error {
	payload, err := encodeParseJob(job)
	if err != nil {
		return err
	}

	publish := func(context.Context) error {
		return q.conn.Publish(q.subject, payload)
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", publish, classifyPublishError)
	} else {
		err = publish(ctx)
	}
	if err != nil {
		return publishFailure(err)
	}
	slog.Info("parse_job_published", "subject", q.subject, "dataset_id", job.DatasetID, "documents", len(job.DocumentIDs))
	return nil
}

// SubscribeParseRequested blocks until ctx ends, then drains the subscription
// and waits for the jobs already delivered. Handlers get a context that keeps
// ctx's values but not its cancellation, so drained jobs run to completion.
func (q *Queue) SubscribeParseRequested(ctx context.Context, handler func(context.Context, domain.ParseJob) error) error {
	sub, err := q.conn.QueueSubscribeSync(q.subject, parseWorkersGroup)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		consumeParseJobs(ctx, sub, handler)
	}()

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	<-consumed
	if err := q.conn.FlushTimeout(drainFlushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// consumeParseJobs returns once the subscription is closed, which happens
// after a drain has handed out every pending message. Cancelling ctx does
// not stop it.
func consumeParseJobs(ctx context.Context, sub *nats.Subscription, handler func(context.Context, domain.ParseJob) error) {
	ctx = context.WithoutCancel(ctx)
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if errors.Is(err, nats.ErrSlowConsumer) {
			slog.Warn("parse_jobs_dropped", "error", err)
			continue
		}
		if err != nil {
			return
		}
		deliverParseJob(ctx, msg.Data, handler)
	}
}

// deliverParseJob runs handler detached from ctx's cancellation.
func deliverParseJob(ctx context.Context, data []byte, handler func(context.Context, domain.ParseJob) error) {
	job, err := decodeParseJob(data)
	if err != nil {
		slog.Error("parse_job_rejected", "error", err)
		return
	}
	if err := handler(context.WithoutCancel(ctx), job); err != nil {
		slog.Error("parse_job_failed", "dataset_id", job.DatasetID, "document_ids", job.DocumentIDs, "error", err)
		return
	}
	slog.Info("parse_job_done", "dataset_id", job.DatasetID, "documents", len(job.DocumentIDs))
}

func validParseJob(job domain.ParseJob) bool {
	return strings.TrimSpace(job.DatasetID) != "" && len(job.DocumentIDs) > 0
}

func encodeParseJob(job domain.ParseJob) ([]byte, error) {
	if !validParseJob(job) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode parse job", errors.New("dataset id and document ids are required"))
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal parse job: %w", err)
	}
	return payload, nil
}

func decodeParseJob(data []byte) (domain.ParseJob, error) {
	var job domain.ParseJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.ParseJob{}, fmt.Errorf("decode parse job: %w", err)
	}
	if !validParseJob(job) {
		return domain.ParseJob{}, errors.New("decode parse job: dataset id and document ids are required")
	}
	return job, nil
}

// connectionLoss lists publish errors that clear up once the client reconnects.
var connectionLoss = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
}

func isConnectionLoss(err error) bool {
	return slices.ContainsFunc(connectionLoss, func(target error) bool { return errors.Is(err, target) })
}

func classifyPublishError(err error) resilience.Outcome {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.Ignored
	case isConnectionLoss(err):
		return resilience.Transient
	default:
		return resilience.Permanent
	}
}

// publishFailure marks connection-level failures as temporary so the API
// answers 503 instead of 500.
func publishFailure(err error) error {
	if isConnectionLoss(err) || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return fmt.Errorf("nats publish: %w", err)
}
