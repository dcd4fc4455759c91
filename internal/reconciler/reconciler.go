// Package reconciler keeps a local, non-authoritative view of an item's price
// consistent with the backend. Every source of new information (initial load,
// push notifications, polling, own submissions) goes through one take-max
// rule, so a late response can never lower the displayed price.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/metrics"
	model "charity-auction/internal/models"
	"charity-auction/utils"

	"golang.org/x/sync/errgroup"
)

// Source is the slice of the backend the reconciler reads.
type Source interface {
	GetItem(ctx context.Context, itemID string) (model.Item, error)
	GetHighestBid(ctx context.Context, itemID string) (model.Bid, error)
	GetBidHistory(ctx context.Context, itemID string, limit int) ([]model.Bid, error)
	SubscribeToNewBids(ctx context.Context, itemID string, onInsert func(model.Bid)) (func(), error)
}

// Options tune a Reconciler. Zero values fall back to DefaultOptions.
type Options struct {
	HistoryLimit int
	PollInterval time.Duration
	TickInterval time.Duration
	// FallbackPoll polls the highest bid in addition to push notifications.
	// Polling is always enabled when the subscription cannot be established.
	FallbackPoll bool
	NoticeTTL    time.Duration
	Currency     string
	Now          func() time.Time
	// OnNewBid runs after a pushed bid has been reconciled while the auction
	// is still open.
	OnNewBid func(ctx context.Context, bid model.Bid)
}

// DefaultOptions returns the production intervals.
func DefaultOptions() Options {
	return Options{
		HistoryLimit: 10,
		PollInterval: 5 * time.Second,
		TickInterval: time.Second,
		FallbackPoll: true,
		NoticeTTL:    5 * time.Second,
		Currency:     "MWK",
		Now:          time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = def.HistoryLimit
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	if o.NoticeTTL <= 0 {
		o.NoticeTTL = def.NoticeTTL
	}
	if o.Currency == "" {
		o.Currency = def.Currency
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

// Reconciler owns the AuctionState of one item for one view.
type Reconciler struct {
	src    Source
	itemID string
	opts   Options

	mu          sync.Mutex
	state       model.AuctionState
	noticeAt    time.Time
	gen         uint64 // bumped by Stop; async results from older generations are dropped
	running     bool
	stopped     bool
	cancel      context.CancelFunc
	unsubscribe func()
	watchers    map[int]chan model.AuctionState
	nextWatcher int

	wg sync.WaitGroup
}

// New creates a Reconciler for itemID. Call Load and then Start.
func New(src Source, itemID string, opts Options) *Reconciler {
	return &Reconciler{
		src:      src,
		itemID:   itemID,
		opts:     opts.withDefaults(),
		watchers: make(map[int]chan model.AuctionState),
	}
}

// ItemID returns the item this reconciler tracks.
func (r *Reconciler) ItemID() string { return r.itemID }

// Load fetches the item, its highest bid and recent history in parallel.
// A missing highest bid means the starting bid is current.
func (r *Reconciler) Load(ctx context.Context) error {
	gen := r.generation()

	var (
		item        model.Item
		highest     model.Bid
		hasHighest  bool
		history     []model.Bid
		historyFail bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		item, err = r.src.GetItem(gctx, r.itemID)
		return err
	})
	g.Go(func() error {
		b, err := r.src.GetHighestBid(gctx, r.itemID)
		switch {
		case errors.Is(err, biddingerrors.ErrNoBids):
			return nil
		case err != nil:
			return err
		}
		highest, hasHighest = b, true
		return nil
	})
	g.Go(func() error {
		h, err := r.src.GetBidHistory(gctx, r.itemID, r.opts.HistoryLimit)
		if err != nil {
			// history is cosmetic; the view still works without it
			historyFail = true
			utils.Warn("reconciler: loading bid history failed", map[string]any{
				"component": "reconciler",
				"item_id":   r.itemID,
				"error":     err.Error(),
			})
			return nil
		}
		history = h
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, biddingerrors.ErrItemNotFound) {
			return fmt.Errorf("reconciler: load: %w", err)
		}
		return &biddingerrors.NetworkError{Op: "load auction", Err: err}
	}

	current := item.StartingBid
	if hasHighest && highest.Amount > current {
		current = highest.Amount
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.stopped {
		return biddingerrors.ErrViewClosed
	}
	r.state.Item = item
	r.state.Loaded = true
	r.takeMax(current)
	if !historyFail {
		r.state.History = r.capped(history)
	}
	r.state.LastSynced = r.opts.Now()
	r.applyClock(r.opts.Now())
	metrics.Reconciliations.WithLabelValues(metrics.SourceLoad).Inc()
	r.publish()
	return nil
}

// Start subscribes to new bids and starts the countdown and poll loop.
// The loop stops when Stop is called or ctx is done.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return biddingerrors.ErrViewClosed
	}
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	gen := r.gen
	r.mu.Unlock()

	poll := r.opts.FallbackPoll
	unsubscribe, err := r.src.SubscribeToNewBids(runCtx, r.itemID, func(b model.Bid) {
		r.HandlePush(runCtx, b)
	})
	if err != nil {
		poll = true
		utils.Warn("reconciler: subscribing to new bids failed, polling instead", map[string]any{
			"component": "reconciler",
			"item_id":   r.itemID,
			"error":     err.Error(),
		})
	}

	r.mu.Lock()
	if gen != r.gen || r.stopped {
		// stopped while subscribing
		r.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		cancel()
		return biddingerrors.ErrViewClosed
	}
	r.unsubscribe = unsubscribe
	r.wg.Add(1)
	r.mu.Unlock()

	go r.loop(runCtx, poll)
	return nil
}

func (r *Reconciler) loop(ctx context.Context, poll bool) {
	defer r.wg.Done()

	tick := time.NewTicker(r.opts.TickInterval)
	defer tick.Stop()

	var pollC <-chan time.Time
	if poll {
		p := time.NewTicker(r.opts.PollInterval)
		defer p.Stop()
		pollC = p.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			r.Tick(r.opts.Now())
		case <-pollC:
			if err := r.Poll(ctx); err != nil && !errors.Is(err, biddingerrors.ErrViewClosed) && ctx.Err() == nil {
				metrics.ReconcileFailures.WithLabelValues(metrics.SourcePoll).Inc()
				utils.Warn("reconciler: poll failed", map[string]any{
					"component": "reconciler",
					"item_id":   r.itemID,
					"error":     err.Error(),
				})
			}
		}
	}
}

// Stop tears down the subscription and the timers, closes all watchers and
// waits for background work to exit. Results of fetches still in flight are
// dropped. A stopped Reconciler cannot be restarted.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.wg.Wait()
		return
	}
	r.stopped = true
	r.gen++
	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	for id, ch := range r.watchers {
		close(ch)
		delete(r.watchers, id)
	}
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.wg.Wait()
}

// HandlePush reconciles after another client inserted bid. It prefers a full
// re-fetch and falls back to merging the pushed bid locally.
func (r *Reconciler) HandlePush(ctx context.Context, bid model.Bid) {
	if bid.ItemID != "" && bid.ItemID != r.itemID {
		return
	}
	gen := r.generation()

	highest, history, err := r.fetchAuthoritative(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.stopped {
		return
	}

	if err != nil {
		metrics.ReconcileFailures.WithLabelValues(metrics.SourcePush).Inc()
		utils.Warn("reconciler: refresh after push failed, merging locally", map[string]any{
			"component": "reconciler",
			"item_id":   r.itemID,
			"error":     err.Error(),
		})
		r.takeMax(bid.Amount)
		r.state.History = r.capped(prependUnique(r.state.History, bid))
		metrics.Reconciliations.WithLabelValues(metrics.SourcePushFallback).Inc()
	} else {
		r.applyAuthoritative(highest, history)
		metrics.Reconciliations.WithLabelValues(metrics.SourcePush).Inc()
	}

	if !r.state.Ended {
		r.state.Notice = fmt.Sprintf("New bid of %s from %s!", utils.FormatCurrency(bid.Amount, r.opts.Currency), bid.BidderName)
		r.noticeAt = r.opts.Now()
		if r.opts.OnNewBid != nil {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.opts.OnNewBid(ctx, bid)
			}()
		}
	}
	r.publish()
}

// Poll fetches the highest bid and moves the price upward only. It is a
// no-op once the auction has ended.
func (r *Reconciler) Poll(ctx context.Context) error {
	r.mu.Lock()
	gen, ended, current := r.gen, r.state.Ended, r.state.CurrentBid
	r.mu.Unlock()
	if ended {
		return nil
	}

	highest, err := r.src.GetHighestBid(ctx, r.itemID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return nil
	}
	if err != nil {
		return &biddingerrors.NetworkError{Op: "poll highest bid", Err: err}
	}
	if highest.Amount <= current {
		return nil
	}

	history, err := r.src.GetBidHistory(ctx, r.itemID, r.opts.HistoryLimit)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.stopped {
		return biddingerrors.ErrViewClosed
	}
	if r.state.Ended {
		return nil
	}
	if r.takeMax(highest.Amount) {
		if err == nil {
			r.state.History = r.capped(history)
		} else {
			r.state.History = r.capped(prependUnique(r.state.History, highest))
		}
		r.state.LastSynced = r.opts.Now()
		metrics.Reconciliations.WithLabelValues(metrics.SourcePoll).Inc()
		r.publish()
	}
	return nil
}

// Refresh re-fetches the highest bid and history. The price is applied with
// take-max; the history is replaced.
func (r *Reconciler) Refresh(ctx context.Context) error {
	gen := r.generation()

	highest, history, err := r.fetchAuthoritative(ctx)
	if err != nil {
		metrics.ReconcileFailures.WithLabelValues(metrics.SourceRefresh).Inc()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.stopped {
		return biddingerrors.ErrViewClosed
	}
	r.applyAuthoritative(highest, history)
	metrics.Reconciliations.WithLabelValues(metrics.SourceRefresh).Inc()
	r.publish()
	return nil
}

// Offer proposes a new current price and reports whether it was taken.
func (r *Reconciler) Offer(amount int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || !r.takeMax(amount) {
		return false
	}
	r.publish()
	return true
}

// ApplyOwnBid shows a just-created bid immediately and then confirms the
// price with a background refresh.
func (r *Reconciler) ApplyOwnBid(ctx context.Context, bid model.Bid) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.takeMax(bid.Amount)
	r.state.History = r.capped(prependUnique(r.state.History, bid))
	metrics.Reconciliations.WithLabelValues(metrics.SourceOwnBid).Inc()
	r.publish()
	r.wg.Add(1)
	r.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		refreshCtx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		if err := r.Refresh(refreshCtx); err != nil && !errors.Is(err, biddingerrors.ErrViewClosed) {
			utils.Warn("reconciler: refresh after own bid failed", map[string]any{
				"component": "reconciler",
				"item_id":   r.itemID,
				"error":     err.Error(),
			})
		}
	}()
}

// Tick advances the countdown to now and enters the terminal Ended state
// once the auction end has passed. It reports whether the state changed.
func (r *Reconciler) Tick(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || !r.state.Loaded {
		return false
	}
	if !r.applyClock(now) {
		return false
	}
	r.publish()
	return true
}

// State returns a copy of the current state.
func (r *Reconciler) State() model.AuctionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Ended reports whether the auction has ended for this view.
func (r *Reconciler) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Ended
}

// Watch returns a channel that receives the latest state after every change.
// Slow readers only ever see the newest state. The channel is closed by
// cancel or Stop.
func (r *Reconciler) Watch() (<-chan model.AuctionState, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan model.AuctionState, 1)
	if r.stopped {
		ch <- r.snapshot()
		close(ch)
		return ch, func() {}
	}
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = ch
	ch <- r.snapshot()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if w, ok := r.watchers[id]; ok {
			close(w)
			delete(r.watchers, id)
		}
	}
}

func (r *Reconciler) generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Reconciler) fetchAuthoritative(ctx context.Context) (model.Bid, []model.Bid, error) {
	var (
		highest model.Bid
		history []model.Bid
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := r.src.GetHighestBid(gctx, r.itemID)
		if errors.Is(err, biddingerrors.ErrNoBids) {
			return nil
		}
		highest = b
		return err
	})
	g.Go(func() error {
		h, err := r.src.GetBidHistory(gctx, r.itemID, r.opts.HistoryLimit)
		history = h
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Bid{}, nil, &biddingerrors.NetworkError{Op: "refresh auction", Err: err}
	}
	return highest, history, nil
}

// applyAuthoritative must be called with r.mu held.
func (r *Reconciler) applyAuthoritative(highest model.Bid, history []model.Bid) {
	r.takeMax(highest.Amount)
	r.state.History = r.capped(history)
	r.state.LastSynced = r.opts.Now()
}

// takeMax must be called with r.mu held.
func (r *Reconciler) takeMax(amount int64) bool {
	if amount <= r.state.CurrentBid {
		return false
	}
	r.state.CurrentBid = amount
	return true
}

// applyClock must be called with r.mu held.
func (r *Reconciler) applyClock(now time.Time) bool {
	changed := false
	if !r.state.Ended && r.state.Item.HasEnded(now) {
		r.state.Ended = true
		r.state.Notice = ""
		changed = true
	}
	if r.state.Item.AuctionEnd != nil {
		var left model.Countdown
		if !r.state.Ended {
			left = model.CountdownUntil(now, *r.state.Item.AuctionEnd)
		}
		if left != r.state.TimeLeft {
			r.state.TimeLeft = left
			changed = true
		}
	}
	if r.state.Notice != "" && now.Sub(r.noticeAt) >= r.opts.NoticeTTL {
		r.state.Notice = ""
		changed = true
	}
	return changed
}

func (r *Reconciler) capped(history []model.Bid) []model.Bid {
	out := make([]model.Bid, 0, min(len(history), r.opts.HistoryLimit))
	for i := 0; i < len(history) && i < r.opts.HistoryLimit; i++ {
		out = append(out, history[i])
	}
	return out
}

// snapshot must be called with r.mu held.
func (r *Reconciler) snapshot() model.AuctionState {
	s := r.state
	s.History = append([]model.Bid(nil), r.state.History...)
	return s
}

// publish bumps the version and offers the new state to every watcher
// without blocking. Must be called with r.mu held.
func (r *Reconciler) publish() {
	r.state.Version++
	s := r.snapshot()
	for _, ch := range r.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// prependUnique puts bid first unless a bid with the same ID is already known.
func prependUnique(history []model.Bid, bid model.Bid) []model.Bid {
	for _, b := range history {
		if bid.BidID != "" && b.BidID == bid.BidID {
			return history
		}
	}
	return append([]model.Bid{bid}, history...)
}
