package push

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tandem/internal/domain"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 8
)

// Message is the JSON payload delivered to a device.
type Message struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	URL        string `json:"url,omitempty"`
	ActivityID int64  `json:"activity_id,omitempty"`
}

// Store is the subscription persistence the dispatcher needs.
type Store interface {
	UpsertSubscription(ctx context.Context, s domain.PushSubscription) error
	ListSubscriptions(ctx context.Context, person domain.Person) ([]domain.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

// Report summarises one fan-out.
type Report struct {
	Attempted int
	Delivered int
	Pruned    int
	Failed    int
}

type Options struct {
	Timeout     time.Duration
	Concurrency int
	Logger      *zap.Logger
	Now         func() time.Time
}

// Dispatcher fans a message out to every device of a person. Delivery is
// advisory: failures are logged and absorbed, and gone endpoints are pruned.
type Dispatcher struct {
	store       Store
	sender      Sender
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	inflight sync.WaitGroup
}

// New builds a dispatcher. A nil sender disables delivery entirely.
func New(store Store, sender Sender, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if ws, ok := sender.(*WebPushSender); ok && ws == nil {
		sender = nil
	}
	return &Dispatcher{
		store:       store,
		sender:      sender,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// Enabled reports whether delivery credentials were configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.sender != nil
}

// Notify starts delivery in the background and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, person domain.Person, msg Message) {
	if !d.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.Deliver(ctx, person, msg)
	}()
}

// Wait blocks until background deliveries started by Notify have finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Deliver sends msg to every subscription of person in parallel and waits.
func (d *Dispatcher) Deliver(ctx context.Context, person domain.Person, msg Message) Report {
	var report Report
	if !d.Enabled() {
		return report
	}
	log := d.logger.With(zap.String("person", string(person)))
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("push: encode payload", zap.Error(err))
		return report
	}
	listCtx, cancel := context.WithTimeout(ctx, d.timeout)
	subs, err := d.store.ListSubscriptions(listCtx, person)
	cancel()
	if err != nil {
		log.Warn("push: list subscriptions", zap.Error(err))
		return report
	}

	var delivered, pruned, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			switch d.deliverOne(ctx, log, sub, payload) {
			case outcomeDelivered:
				delivered.Add(1)
			case outcomePruned:
				pruned.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report = Report{
		Attempted: len(subs),
		Delivered: int(delivered.Load()),
		Pruned:    int(pruned.Load()),
		Failed:    int(failed.Load()),
	}
	log.Debug("push: fan-out finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Int("pruned", report.Pruned),
		zap.Int("failed", report.Failed))
	return report
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomePruned
	outcomeFailed
)

func (d *Dispatcher) deliverOne(ctx context.Context, log *zap.Logger, sub domain.PushSubscription, payload []byte) outcome {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.sender.Send(sendCtx, sub, payload)
	if err == nil {
		return outcomeDelivered
	}
	log = log.With(zap.String("endpoint", endpointHost(sub.Endpoint)))
	if !IsGone(err) {
		log.Warn("push: delivery failed", zap.Error(err))
		return outcomeFailed
	}
	delCtx, delCancel := context.WithTimeout(ctx, d.timeout)
	defer delCancel()
	if err := d.store.DeleteSubscription(delCtx, sub.Endpoint); err != nil {
		log.Warn("push: prune subscription", zap.Error(err))
		return outcomeFailed
	}
	log.Info("push: pruned gone subscription")
	return outcomePruned
}

// SubscriptionInput mirrors the browser PushSubscription JSON.
type SubscriptionInput struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Subscribe registers or reassigns a device by endpoint.
func (d *Dispatcher) Subscribe(ctx context.Context, person domain.Person, in SubscriptionInput) (domain.PushSubscription, error) {
	if !person.Valid() {
		return domain.PushSubscription{}, domain.Validation("person", "missing or invalid person")
	}
	in.Endpoint = strings.TrimSpace(in.Endpoint)
	in.P256dh = strings.TrimSpace(in.P256dh)
	in.Auth = strings.TrimSpace(in.Auth)
	if in.Endpoint == "" || in.P256dh == "" || in.Auth == "" {
		return domain.PushSubscription{}, domain.Validation("subscription", "missing subscription endpoint or keys")
	}
	sub := domain.PushSubscription{
		Endpoint:  in.Endpoint,
		Person:    person,
		P256dh:    in.P256dh,
		Auth:      in.Auth,
		CreatedAt: d.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.store.UpsertSubscription(ctx, sub); err != nil {
		return domain.PushSubscription{}, domain.StoreUnavailable("save subscription", err)
	}
	return sub, nil
}

// StatusError carries the push service's HTTP status for a failed send.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "push service status " + itoa(e.StatusCode)
	}
	return "push service status " + itoa(e.StatusCode) + ": " + e.Body
}

// IsGone reports a permanent failure: the endpoint no longer exists (404/410).
func IsGone(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 404 || se.StatusCode == 410
	}
	return false
}
