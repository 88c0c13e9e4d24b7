// Package worker implements the browser-automation worker runtime: a
// persistent-session broker subscriber that dispatches each inbound job to
// a handler under resource admission control, classifies handler failures,
// and drives the retry manager's IMMEDIATE_RETRY / REQUEUE / DLQ decision.
// The resource admission controller's max_concurrent semaphore is this
// runtime's only concurrency limit; no additional worker-pool sizing is
// layered on top of it.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/juanqu261/bots-brokerwiz/internal/adapter/broker"
	"github.com/juanqu261/bots-brokerwiz/internal/admission"
	"github.com/juanqu261/bots-brokerwiz/internal/classifier"
	"github.com/juanqu261/bots-brokerwiz/internal/domain"
	"github.com/juanqu261/bots-brokerwiz/internal/handler"
	"github.com/juanqu261/bots-brokerwiz/internal/retry"
)

// BrokerClient is the subset of *broker.Client the runtime depends on.
type BrokerClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Subscribe(ctx context.Context, topic string, qos byte) (<-chan broker.Message, error)
}

// Options configures a Runtime.
type Options struct {
	// Group names the shared-subscription group: "workers" for an
	// omnivore worker, "workers-<vendor>" for a vendor-pinned one.
	Group string
	// Vendor pins the worker to a single vendor queue. Empty means the
	// worker consumes every vendor's queue via the `+` wildcard.
	Vendor domain.Vendor
	// Qos is not read by the runtime: requeue/DLQ republishes use the QoS
	// the retry manager was constructed with.
	Qos byte
	// ReconnectDelay is the fixed pause before reconnecting after the
	// consume loop exits. Defaults to 5s.
	ReconnectDelay time.Duration
	// TaskTimeout bounds a single handler invocation (worker_timeout,
	// default 300s per §5).
	TaskTimeout time.Duration
	// ShutdownGrace bounds how long Run waits for in-flight tasks to
	// finish once its context is cancelled.
	ShutdownGrace time.Duration
}

// Runtime consumes job envelopes from the broker and drives them through
// the registered vendor handlers.
type Runtime struct {
	client     BrokerClient
	topics     broker.Topics
	admission  *admission.Controller
	registry   *handler.Registry
	retryMgr   *retry.Manager
	opts       Options
	inFlightWG sync.WaitGroup
}

// NewRuntime builds a worker runtime.
func NewRuntime(client BrokerClient, topics broker.Topics, adm *admission.Controller, registry *handler.Registry, retryMgr *retry.Manager, opts Options) *Runtime {
	if opts.Group == "" {
		if opts.Vendor != "" {
			opts.Group = "workers-" + string(opts.Vendor)
		} else {
			opts.Group = "workers"
		}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 300 * time.Second
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 30 * time.Second
	}
	return &Runtime{client: client, topics: topics, admission: adm, registry: registry, retryMgr: retryMgr, opts: opts}
}

func (r *Runtime) queueTopic() string {
	if r.opts.Vendor != "" {
		return r.topics.QueueTopic(r.opts.Vendor)
	}
	return r.topics.QueueWildcard()
}

// Run connects, subscribes, and consumes until ctx is cancelled,
// reconnecting on a fixed delay whenever connect, subscribe, or the
// consume loop itself fails.
func (r *Runtime) Run(ctx context.Context) error {
	sharedTopic := r.topics.SharedQueueTopic(r.opts.Group, r.queueTopic())
	slog.Info("worker runtime starting", slog.String("group", r.opts.Group), slog.String("topic", sharedTopic))

	for {
		if ctx.Err() != nil {
			r.drain()
			return ctx.Err()
		}

		var msgs <-chan broker.Message
		connectAndSubscribe := func() error {
			if err := r.client.Connect(ctx); err != nil {
				return err
			}
			m, err := r.client.Subscribe(ctx, sharedTopic, 1)
			if err != nil {
				r.client.Disconnect()
				return err
			}
			msgs = m
			return nil
		}
		bo := backoff.WithContext(backoff.NewConstantBackOff(r.opts.ReconnectDelay), ctx)
		err := backoff.RetryNotify(connectAndSubscribe, bo, func(err error, d time.Duration) {
			slog.Warn("worker broker connect/subscribe failed, retrying", slog.Any("error", err), slog.Duration("delay", d))
		})
		if err != nil {
			r.drain()
			return ctx.Err()
		}

		r.consume(ctx, msgs)

		if ctx.Err() != nil {
			r.drain()
			return ctx.Err()
		}
		slog.Warn("worker consume loop exited, reconnecting", slog.Duration("delay", r.opts.ReconnectDelay))
		r.client.Disconnect()
		if !r.sleep(ctx, r.opts.ReconnectDelay) {
			r.drain()
			return ctx.Err()
		}
	}
}

func (r *Runtime) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// consume dispatches each inbound message to its own goroutine, tracked in
// inFlightWG, so a slow handler never blocks message pickup.
func (r *Runtime) consume(ctx context.Context, msgs <-chan broker.Message) {
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.inFlightWG.Add(1)
			go func() {
				defer r.inFlightWG.Done()
				r.dispatch(ctx, msg)
			}()
		case <-ctx.Done():
			return
		}
	}
}

// drain waits up to ShutdownGrace for in-flight tasks to finish.
func (r *Runtime) drain() {
	done := make(chan struct{})
	go func() {
		r.inFlightWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.opts.ShutdownGrace):
		slog.Warn("worker shutdown grace period elapsed with tasks still in flight")
	}
}

// dispatch runs one inbound message through admission, handler invocation,
// classification, and retry/DLQ routing, in that order.
func (r *Runtime) dispatch(ctx context.Context, msg broker.Message) {
	vendor := broker.VendorFromQueueTopic(msg.Topic)
	env := msg.Envelope

	factory, err := r.registry.Lookup(vendor)
	if err != nil {
		slog.Warn("no handler registered for vendor, dropping message", slog.String("vendor", string(vendor)), slog.String("job_id", env.JobID))
		msg.Ack()
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	defer cancel()

	slot, err := r.admission.Acquire(taskCtx, env.JobID, vendor)
	if err != nil {
		var resErr *domain.ResourceUnavailable
		if errors.As(err, &resErr) {
			slog.Warn("resource unavailable, leaving message unacked for redelivery", slog.String("job_id", env.JobID), slog.String("reason", resErr.Reason))
			return
		}
		slog.Error("admission acquire failed", slog.String("job_id", env.JobID), slog.Any("error", err))
		return
	}
	defer slot.Release()

	ok, runErr := r.invoke(taskCtx, factory, env)
	if ok {
		msg.Ack()
		return
	}

	r.handleFailure(ctx, vendor, env, runErr)
	msg.Ack()
}

// invoke runs Setup/Run/Teardown, attempting one immediate in-place retry
// for a TRANSIENT classification before returning to the caller.
func (r *Runtime) invoke(ctx context.Context, factory handler.Factory, env domain.Envelope) (bool, error) {
	h := factory(env.JobID, env.Payload)
	defer func() {
		if err := h.Teardown(ctx); err != nil {
			slog.Warn("handler teardown failed", slog.String("job_id", env.JobID), slog.Any("error", err))
		}
	}()
	if err := h.Setup(ctx); err != nil {
		return false, err
	}

	ok, err := h.Run(ctx)
	if ok {
		return true, nil
	}

	errType, _ := classifier.Classify(err)
	if errType == domain.ErrorTypeTransient {
		slog.Info("retrying handler in place after transient failure", slog.String("job_id", env.JobID))
		ok, err = h.Run(ctx)
		if ok {
			return true, nil
		}
	}
	return false, err
}

func (r *Runtime) handleFailure(ctx context.Context, vendor domain.Vendor, env domain.Envelope, runErr error) {
	detail := classifier.ToErrorDetail(runErr, false)
	action := r.retryMgr.Decide(detail.ErrorType, env, true)

	switch action {
	case retry.ActionDLQ:
		if err := r.retryMgr.SendToDLQ(ctx, vendor, env, detail); err != nil {
			slog.Error("failed to send job to DLQ", slog.String("job_id", env.JobID), slog.Any("error", err))
		}
	default:
		if err := r.retryMgr.Requeue(ctx, vendor, env, detail); err != nil {
			slog.Error("failed to requeue job", slog.String("job_id", env.JobID), slog.Any("error", err))
		}
	}
}
