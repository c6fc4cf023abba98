package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const (
	DefaultResumeSubject = "dossier.cases.resume"
	DefaultEventsSubject = "dossier.documents"
)

// Queue carries resume requests to the worker and fans document status
// events out on <events subject>.<case id>.
type Queue struct {
	conn          *nats.Conn
	resumeSubject string
	eventsSubject string
	executor      *resilience.Executor
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

type Options struct {
	ResumeSubject        string
	EventsSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("dossier-summarizer"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
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
	resumeSubject := strings.TrimSpace(options.ResumeSubject)
	if resumeSubject == "" {
		resumeSubject = DefaultResumeSubject
	}
	eventsSubject := strings.TrimSpace(options.EventsSubject)
	if eventsSubject == "" {
		eventsSubject = DefaultEventsSubject
	}
	return &Queue{
		conn:          conn,
		resumeSubject: resumeSubject,
		eventsSubject: eventsSubject,
		executor:      options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishResumeRequest(ctx context.Context, caseID string) error {
	return q.publish(ctx, "publish resume request", q.resumeSubject, []byte(caseID))
}

func (q *Queue) PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode document event: %w", err)
	}
	return q.publish(ctx, "publish document event", eventSubject(q.eventsSubject, event.CaseID), payload)
}

// eventSubject keeps case ids from adding subject tokens or wildcards.
func eventSubject(prefix, caseID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, caseID)
	return prefix + "." + token
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return toQueueError(operation, err)
	}
	return nil
}

// resumeCaseID reads a resume request payload. Only bare case ids are
// accepted from the wire.
func resumeCaseID(payload []byte) (string, error) {
	caseID := strings.TrimSpace(string(payload))
	if err := domain.ValidateCaseID(caseID); err != nil {
		return "", err
	}
	return caseID, nil
}

// SubscribeResumeRequests runs handler for each request, one at a time per
// worker, until ctx ends; then the subscription is drained.
func (q *Queue) SubscribeResumeRequests(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.resumeSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		caseID, err := resumeCaseID(msg.Data)
		if err != nil {
			slog.Warn("resume_request_rejected", "subject", msg.Subject, "error", err)
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, caseID); err != nil {
			slog.Error("resume_request_failed", "case_id", caseID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("resume_subscription_ready", "subject", q.resumeSubject)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
