// Package sync coordinates the wallet session and the remote record into the
// mode and entry list the user sees.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/brojonat/moonportal/service/metrics"
	"github.com/brojonat/moonportal/service/record"
	"github.com/brojonat/moonportal/service/wallet"
)

// Session is the identity source the controller follows.
// *session.Store implements it.
type Session interface {
	Identity() wallet.Identity
	Subscribe(fn func(wallet.Identity)) func()
	TryRestoreSilently(ctx context.Context) (wallet.Identity, error)
	ConnectInteractively(ctx context.Context) (wallet.Identity, error)
	Disconnect()
}

// Records is the remote record capability. *record.Client implements it.
type Records interface {
	Fetch(ctx context.Context, owner wallet.Identity) record.FetchResult
	Initialize(ctx context.Context, owner wallet.Identity) error
	SubmitEntry(ctx context.Context, owner wallet.Identity, payload string) error
}

type pendingEntry struct {
	id     uint64
	link   string
	acked  bool
	ackSeq uint64 // fetchSeq at acknowledgement
}

// Controller is the record synchronization state machine. All state below the
// loop marker is owned by the Run goroutine; other goroutines reach it only by
// posting closures onto events.
//
// Session methods that publish identity changes are never called from the loop,
// since the session delivers changes synchronously to the subscriber.
type Controller struct {
	session Session
	records Records
	metrics *metrics.Metrics
	logger  *slog.Logger

	events  chan func()
	done    chan struct{}
	unwatch func()

	// loop
	ctx        context.Context
	started    bool
	identity   wallet.Identity
	connecting bool
	connectSeq uint64 // latest connect attempt
	phase      recordPhase
	confirmed  []string
	pending    []pendingEntry
	nextID     uint64
	draft      string
	lastErr    error
	epoch      uint64 // incremented on every identity change
	fetchSeq   uint64 // latest fetch issued
	fetching   bool
	inflight   map[wallet.Identity]bool // owners with an initialize or submit outstanding
	subs       map[int]func(View)
	nextSub    int
}

// NewController creates a controller that follows session. Run must be called
// for it to make progress. If m is nil, no metrics will be recorded.
func NewController(session Session, records Records, m *metrics.Metrics, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Controller{
		session: session,
		records: records,
		metrics: m,
		logger:  logger,
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
		subs:    make(map[int]func(View)),

		inflight: make(map[wallet.Identity]bool),
	}
	c.unwatch = session.Subscribe(func(id wallet.Identity) {
		c.post(func() { c.identityChanged(id) })
	})
	return c
}

// Run processes events until ctx is cancelled. In-flight remote calls are
// cancelled with it.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(c.done)
	defer c.unwatch()

	c.ctx = ctx
	c.identityChanged(c.session.Identity())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

// post enqueues fn for the loop. It gives up once the loop has stopped.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- func() { reply <- fn() }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start attempts a silent restore of a previously trusted session. Only a
// missing wallet is surfaced; an untrusted wallet simply stays disconnected.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.started || !c.identity.IsZero() || c.connecting {
			return nil
		}
		c.started = true
		seq := c.beginConnect()

		go func() {
			_, err := c.session.TryRestoreSilently(c.ctx)
			if err != nil && !errors.Is(err, wallet.ErrProviderUnavailable) {
				c.logger.Debug("silent restore declined", "error", err)
				err = nil
			}
			c.post(func() { c.connectDone(seq, err) })
		}()
		return nil
	})
}

// Connect prompts the wallet for a session. It is a no-op when already connected.
func (c *Controller) Connect(ctx context.Context) error {
	return c.call(ctx, func() error {
		if !c.identity.IsZero() {
			return nil
		}
		if c.connecting {
			return c.reject("connect", ErrOperationInProgress)
		}
		c.lastErr = nil
		seq := c.beginConnect()

		go func() {
			// The session publishes the new identity before returning, so
			// identityChanged is queued ahead of this completion.
			_, err := c.session.ConnectInteractively(c.ctx)
			c.post(func() { c.connectDone(seq, err) })
		}()
		return nil
	})
}

func (c *Controller) beginConnect() uint64 {
	from := c.mode()
	c.connectSeq++
	c.connecting = true
	c.changed(from)
	return c.connectSeq
}

func (c *Controller) connectDone(seq uint64, err error) {
	if seq != c.connectSeq {
		c.dropStale("connect", "seq", seq)
		return
	}
	if !c.connecting {
		// Already settled by the identity change.
		return
	}
	from := c.mode()
	c.connecting = false
	if err != nil {
		c.lastErr = err
	}
	c.changed(from)
}

// Disconnect drops the current identity. Outstanding results for it are discarded.
func (c *Controller) Disconnect(ctx context.Context) error {
	err := c.call(ctx, func() error {
		if c.connecting && c.identity.IsZero() {
			return c.reject("disconnect", ErrOperationInProgress)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.session.Disconnect()
	// The identity change is queued by now; wait for the loop to apply it.
	return c.call(ctx, func() error { return nil })
}

// Refresh re-issues the fetch for the current identity. It is the retry path
// out of FetchError and is also allowed from Ready and Uninitialized.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.identity.IsZero() {
			return c.reject("refresh", wallet.ErrNotConnected)
		}
		if c.phase == phaseInitializing {
			return c.reject("refresh", ErrOperationInProgress)
		}
		from := c.mode()
		c.lastErr = nil
		if c.phase != phaseReady {
			c.phase = phaseUnknown
		}
		c.issueFetch()
		c.changed(from)
		return nil
	})
}

// Initialize creates the remote record. It is only offered from Uninitialized,
// and at most one creation request is ever in flight.
func (c *Controller) Initialize(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.phase == phaseInitializing || c.mutating() {
			return c.reject("initialize", ErrOperationInProgress)
		}
		if c.identity.IsZero() || c.phase != phaseUninitialized {
			return c.reject("initialize", fmt.Errorf("%w: %s", ErrInvalidMode, c.mode()))
		}
		from := c.mode()
		c.phase = phaseInitializing
		c.inflight[c.identity] = true
		c.lastErr = nil
		// A read issued before creation must not flip the mode back.
		c.cancelFetch()
		c.changed(from)

		epoch, owner := c.epoch, c.identity
		go func() {
			err := c.records.Initialize(c.ctx, owner)
			c.post(func() { c.initializeDone(epoch, owner, err) })
		}()
		return nil
	})
}

func (c *Controller) initializeDone(epoch uint64, owner wallet.Identity, err error) {
	if epoch != c.epoch {
		c.mutationSettled(owner, err)
		c.dropStale("initialize", "epoch", epoch)
		return
	}
	from := c.mode()
	delete(c.inflight, owner)
	switch {
	case err == nil:
		c.issueFetch()
	case errors.Is(err, record.ErrAlreadyInitialized):
		// Someone created it first; report it and load what is there.
		c.lastErr = err
		c.issueFetch()
	default:
		c.phase = phaseUninitialized
		c.lastErr = err
	}
	c.changed(from)
}

// SetDraft replaces the text being composed.
func (c *Controller) SetDraft(ctx context.Context, text string) error {
	return c.call(ctx, func() error {
		if c.draft == text {
			return nil
		}
		c.draft = text
		c.changed(c.mode())
		return nil
	})
}

// Submit appends the draft optimistically and sends it. The draft is cleared
// here, once, and is not restored if the remote rejects the entry.
func (c *Controller) Submit(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.identity.IsZero() || c.phase != phaseReady {
			return c.reject("submit", fmt.Errorf("%w: %s", ErrInvalidMode, c.mode()))
		}
		if c.mutating() {
			return c.reject("submit", ErrOperationInProgress)
		}
		link := c.draft
		if err := record.ValidatePayload(link); err != nil {
			return c.reject("submit", fmt.Errorf("%w: %w", record.ErrSubmitFailed, err))
		}

		from := c.mode()
		c.nextID++
		id := c.nextID
		c.pending = append(c.pending, pendingEntry{id: id, link: link})
		c.draft = ""
		c.inflight[c.identity] = true
		c.lastErr = nil
		c.changed(from)

		epoch, owner := c.epoch, c.identity
		go func() {
			err := c.records.SubmitEntry(c.ctx, owner, link)
			c.post(func() { c.submitDone(epoch, owner, id, err) })
		}()
		return nil
	})
}

func (c *Controller) submitDone(epoch uint64, owner wallet.Identity, id uint64, err error) {
	if epoch != c.epoch {
		c.mutationSettled(owner, err)
		c.dropStale("submit", "epoch", epoch)
		return
	}
	from := c.mode()
	delete(c.inflight, owner)
	if err != nil {
		c.removePending(id)
		c.lastErr = err
		if c.metrics != nil {
			c.metrics.RecordRollback()
		}
		c.logger.Warn("rolled back optimistic entry", "identity", c.identity.String(), "error", err)
		c.changed(from)
		return
	}
	for i := range c.pending {
		if c.pending[i].id == id {
			c.pending[i].acked = true
			c.pending[i].ackSeq = c.fetchSeq
		}
	}
	c.issueFetch()
	c.changed(from)
}

// View returns the current view.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	err := c.call(ctx, func() error {
		v = c.view()
		return nil
	})
	return v, err
}

// Subscribe registers fn to receive the view after every transition. fn runs on
// the loop and must not block or call back into the controller.
func (c *Controller) Subscribe(fn func(View)) func() {
	var id int
	registered := make(chan struct{})
	c.post(func() {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = fn
		close(registered)
	})
	return func() {
		select {
		case <-registered:
		case <-c.done:
			return
		}
		c.post(func() { delete(c.subs, id) })
	}
}

func (c *Controller) identityChanged(id wallet.Identity) {
	if id == c.identity {
		return
	}
	from := c.mode()
	c.identity = id
	c.epoch++
	c.phase = phaseUnknown
	c.confirmed = nil
	c.pending = nil
	c.draft = ""
	c.lastErr = nil
	c.fetching = false
	if !id.IsZero() {
		c.connecting = false
	}

	c.logger.Info("identity changed", "identity", id.String(), "epoch", c.epoch)
	if !id.IsZero() {
		c.issueFetch()
	}
	c.changed(from)
}

func (c *Controller) issueFetch() {
	c.fetchSeq++
	c.fetching = true
	seq, epoch, owner := c.fetchSeq, c.epoch, c.identity
	go func() {
		res := c.records.Fetch(c.ctx, owner)
		c.post(func() { c.fetchDone(epoch, seq, res) })
	}()
}

// cancelFetch makes any in-flight fetch stale.
func (c *Controller) cancelFetch() {
	if c.fetching {
		c.fetchSeq++
		c.fetching = false
	}
}

func (c *Controller) fetchDone(epoch, seq uint64, res record.FetchResult) {
	if epoch != c.epoch {
		c.dropStale("fetch", "epoch", epoch)
		return
	}
	if seq != c.fetchSeq {
		c.dropStale("fetch", "seq", seq)
		return
	}

	from := c.mode()
	c.fetching = false
	switch res.State {
	case record.StateReady:
		c.phase = phaseReady
		c.confirmed = make([]string, len(res.Entries))
		for i, e := range res.Entries {
			c.confirmed[i] = e.Link
		}
		c.reconcile(seq)
	case record.StateNotFound:
		c.phase = phaseUninitialized
		c.pending = nil
	default:
		c.lastErr = res.Err
		// A Ready list stays usable when a reconciling read fails.
		if c.phase != phaseReady {
			c.phase = phaseFetchError
		}
	}
	c.changed(from)
}

// reconcile drops provisional entries the remote has had a chance to report.
// Entries still awaiting acknowledgement survive any fetch.
func (c *Controller) reconcile(seq uint64) {
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.acked && seq > p.ackSeq {
			continue
		}
		kept = append(kept, p)
	}
	c.pending = kept
}

func (c *Controller) removePending(id uint64) {
	for i, p := range c.pending {
		if p.id == id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// mutating reports whether the current identity has a mutation outstanding.
// Guards are per owner and outlive identity changes.
func (c *Controller) mutating() bool {
	return !c.identity.IsZero() && c.inflight[c.identity]
}

// mutationSettled releases owner's guard for a result from an earlier epoch.
// When owner is connected again, a successful result is loaded with a fresh
// fetch; the outcome itself is not applied.
func (c *Controller) mutationSettled(owner wallet.Identity, err error) {
	delete(c.inflight, owner)
	if owner != c.identity {
		return
	}
	from := c.mode()
	if err == nil && c.phase != phaseInitializing {
		c.issueFetch()
	}
	c.changed(from)
}

func (c *Controller) dropStale(op, reason string, tag uint64) {
	if c.metrics != nil {
		c.metrics.RecordStaleResponse(op)
	}
	c.logger.Debug("dropped response",
		"error", ErrStaleResponse,
		"operation", op,
		"reason", reason,
		"tag", tag,
		"epoch", c.epoch,
		"seq", c.fetchSeq,
	)
}

// reject surfaces err as the last error and returns it to the caller.
func (c *Controller) reject(action string, err error) error {
	from := c.mode()
	c.lastErr = err
	if c.metrics != nil {
		c.metrics.RecordRejection(action, string(KindOf(err)))
	}
	c.logger.Info("rejected request", "action", action, "mode", from.String(), "error", err)
	c.changed(from)
	return err
}

func (c *Controller) mode() Mode {
	return deriveMode(c.identity, c.connecting, c.phase)
}

func (c *Controller) view() View {
	entries := make([]string, 0, len(c.confirmed)+len(c.pending))
	entries = append(entries, c.confirmed...)
	for _, p := range c.pending {
		entries = append(entries, p.link)
	}
	v := View{
		Mode:     c.mode(),
		Identity: c.identity,
		Entries:  entries,
		Pending:  len(c.pending),
		Draft:    c.draft,
		Busy:     c.fetching || c.mutating() || c.connecting,
	}
	if c.lastErr != nil {
		v.LastError = KindOf(c.lastErr)
		v.ErrorMessage = c.lastErr.Error()
	}
	return v
}

// changed records the transition from the given mode and emits the view.
func (c *Controller) changed(from Mode) {
	to := c.mode()
	if from != to {
		if c.metrics != nil {
			c.metrics.RecordTransition(from.String(), to.String())
		}
		c.logger.Debug("mode transition", "from", from.String(), "to", to.String())
	}
	if len(c.subs) == 0 {
		return
	}
	v := c.view()
	for _, fn := range c.subs {
		fn(v)
	}
}

// DescribeError renders a short user-facing message for a view's error.
func DescribeError(v View) string {
	switch v.LastError {
	case KindNone:
		return ""
	case KindProviderUnavailable:
		return "Solana wallet not found. Configure a keypair to connect."
	case KindUserRejected:
		return "The wallet declined the connection."
	case KindFetchFailed:
		return "Could not load your portal. Refresh to try again."
	case KindAlreadyInitialized:
		return "Your portal already exists."
	case KindSubmitFailed:
		if strings.Contains(v.ErrorMessage, "empty input") {
			return "Empty input. Try again."
		}
		return "Your link was not accepted. It has been removed."
	case KindOperationInProgress:
		return "Still working on the previous request."
	default:
		return v.ErrorMessage
	}
}
