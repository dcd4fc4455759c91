package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"charity-auction/internal/biddingerrors"
	"charity-auction/internal/identity"
	"charity-auction/internal/metrics"
	"charity-auction/internal/models"
	"charity-auction/internal/ratelimit"
	"charity-auction/internal/reconciler"
	"charity-auction/internal/repository"
	"charity-auction/internal/validation"
	"charity-auction/utils"

	"golang.org/x/sync/errgroup"
)

// User-facing banners.
const (
	msgCorrectErrors   = "Please correct the errors below and try again."
	msgAuctionEnded    = "This auction has ended. Bidding is closed."
	msgIdentifyFirst   = "Please identify yourself first."
	msgNetwork         = "Network error. Please check your internet connection and try again."
	msgBidConflict     = "A bid with this exact amount already exists or you were outbid. Please try a different amount."
	msgLoadBidsFailed  = "Failed to load your bids. Please try again."
	msgSubmitFailed    = "Failed to submit bid. Please try again or contact support if the problem persists."
	msgSessionRestored = "Welcome back %s! Showing your bids."
)

// View is the bid controller of one browser session looking at one item. It
// owns the form, the bidder identity and a price reconciler, and is torn down
// when the visitor navigates away.
type View struct {
	sessionID string
	itemID    string

	store     repository.AuctionDB
	validator *validation.Validator
	resolver  *identity.Resolver
	sessions  identity.SessionStore // nil when session persistence is off
	limiter   *ratelimit.Limiter
	rec       *reconciler.Reconciler
	debounce  *identity.Debouncer
	now       func() time.Time

	ctx    context.Context // view lifetime
	cancel context.CancelFunc

	mu          sync.Mutex
	form        models.FormState
	ident       models.IdentityState
	closed      bool
	lastSeen    time.Time
	watchers    map[int]chan models.ViewState
	nextWatcher int

	ready    chan struct{}
	mountErr error
	wg       sync.WaitGroup
}

func newView(s *BiddingService, sessionID, itemID string) *View {
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		sessionID: sessionID,
		itemID:    itemID,
		store:     s.store,
		validator: s.validator,
		resolver:  s.resolver,
		limiter:   s.limiter,
		debounce:  identity.NewDebouncer(s.cfg.LookupDebounce),
		now:       s.cfg.Now,
		ctx:       ctx,
		cancel:    cancel,
		ident:     models.IdentityState{Tab: models.TabNew, Lookup: models.LookupIdle},
		lastSeen:  s.cfg.Now(),
		watchers:  make(map[int]chan models.ViewState),
		ready:     make(chan struct{}),
	}
	if s.cfg.PersistSession {
		v.sessions = s.sessions
	}

	opts := s.cfg.Reconciler
	opts.Currency = s.cfg.Policy.Currency
	opts.Now = s.cfg.Now
	opts.OnNewBid = v.onNewBid
	v.rec = reconciler.New(s.store, itemID, opts)
	return v
}

// Mount loads the auction and the remembered bidder in parallel, then
// starts live updates. Only the auction load can fail the mount.
func (v *View) Mount(ctx context.Context) error {
	var (
		stored   models.BidderIdentity
		restored bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return v.rec.Load(gctx)
	})
	if v.sessions != nil {
		g.Go(func() error {
			id, ok, err := v.sessions.Load(gctx, v.sessionID)
			if err != nil {
				utils.Warn("service: loading bidder session failed", map[string]any{
					"component":  "bidding",
					"session_id": v.sessionID,
					"error":      err.Error(),
				})
				return nil
			}
			stored, restored = id, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("service: mount item %s: %w", v.itemID, err)
	}

	if err := v.rec.Start(v.ctx); err != nil {
		return fmt.Errorf("service: mount item %s: %w", v.itemID, err)
	}

	changes, _ := v.rec.Watch()
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		for range changes {
			v.publish()
		}
	}()

	if restored {
		v.rehydrate(ctx, stored)
	}
	return nil
}

// rehydrate restores the bidder remembered for this browser session and
// shows their bids.
func (v *View) rehydrate(ctx context.Context, stored models.BidderIdentity) {
	v.mu.Lock()
	v.ident.CurrentBidder = &stored
	v.ident.Tab = models.TabYourBids
	v.form.Success = fmt.Sprintf(msgSessionRestored, stored.Name)
	v.mu.Unlock()

	if _, err := v.LoadPersonalBids(ctx); err != nil {
		utils.Warn("service: loading personal bids on mount failed", map[string]any{
			"component": "bidding",
			"item_id":   v.itemID,
			"error":     err.Error(),
		})
	}
	v.publish()
}

// Unmount stops every timer, subscription and pending lookup. Responses that
// arrive afterwards are ignored.
func (v *View) Unmount() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	for id, ch := range v.watchers {
		close(ch)
		delete(v.watchers, id)
	}
	v.mu.Unlock()

	v.debounce.Stop()
	v.cancel()
	v.rec.Stop()
	v.wg.Wait()
}

// State returns everything needed to render the view.
func (v *View) State() models.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() models.ViewState {
	auction := v.rec.State()

	form := v.form
	if v.form.FieldErrors != nil {
		form.FieldErrors = make(map[string]string, len(v.form.FieldErrors))
		for k, msg := range v.form.FieldErrors {
			form.FieldErrors[k] = msg
		}
	}
	ident := v.ident
	ident.PersonalBids = append([]models.Bid(nil), v.ident.PersonalBids...)

	limit := v.limiter.Status(v.sessionID)
	rate := models.RateLimitState{Limited: !limit.Allowed, RetryAfterSeconds: limit.RetryAfterSeconds()}

	return models.ViewState{
		Auction:   auction,
		Form:      form,
		Identity:  ident,
		RateLimit: rate,
		CanBid:    auction.Loaded && !auction.Ended && !form.Submitting && !rate.Limited && !v.closed,
	}
}

// Watch streams view states after every change until cancel or Unmount.
// Slow readers only see the newest state.
func (v *View) Watch() (<-chan models.ViewState, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan models.ViewState, 1)
	ch <- v.stateLocked()
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextWatcher
	v.nextWatcher++
	v.watchers[id] = ch

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if w, ok := v.watchers[id]; ok {
			close(w)
			delete(v.watchers, id)
		}
	}
}

func (v *View) publish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || len(v.watchers) == 0 {
		return
	}
	s := v.stateLocked()
	for _, ch := range v.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (v *View) touch() {
	v.mu.Lock()
	v.lastSeen = v.now()
	v.mu.Unlock()
}

func (v *View) watched() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.watchers) > 0
}

func (v *View) idleSince() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// PlaceBid runs one submission: latch, validation, rate limit, a fresh
// recheck against the backend, insert, then an optimistic update. The
// identity comes from the form, the returning-bidder lookup or the current
// session bidder depending on the mode.
func (v *View) PlaceBid(ctx context.Context, form models.BidForm) (models.Bid, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return models.Bid{}, biddingerrors.ErrViewClosed
	}
	if v.form.Submitting {
		v.mu.Unlock()
		metrics.BidSubmissions.WithLabelValues(metrics.OutcomeDropped).Inc()
		return models.Bid{}, biddingerrors.ErrSubmissionInProgress
	}
	v.form = models.FormState{Submitting: true}
	bidder, err := v.bidderFor(form)
	v.mu.Unlock()
	v.publish()

	defer func() {
		v.mu.Lock()
		v.form.Submitting = false
		v.mu.Unlock()
		v.publish()
	}()

	if err != nil {
		banner := msgCorrectErrors
		if errors.Is(err, biddingerrors.ErrNoIdentity) {
			banner = msgIdentifyFirst
		}
		v.fail(metrics.OutcomeInvalid, banner, nil)
		return models.Bid{}, err
	}
	if v.rec.Ended() {
		v.fail(metrics.OutcomeEnded, msgAuctionEnded, nil)
		return models.Bid{}, fmt.Errorf("service: place bid on item %s: %w", v.itemID, biddingerrors.ErrAuctionEnded)
	}

	auction := v.rec.State()
	res := v.validator.Validate(validation.Input{
		Amount:        form.Amount,
		Name:          bidder.Name,
		Email:         bidder.Email,
		Phone:         bidder.Phone,
		CurrentBid:    auction.CurrentBid,
		RecentAmounts: amountsOf(auction.History),
	})
	if !res.OK() {
		v.fail(metrics.OutcomeInvalid, msgCorrectErrors, res.Errors)
		return models.Bid{}, res.Err()
	}

	if decision := v.limiter.CheckAndRecord(v.sessionID); !decision.Allowed {
		rlErr := &biddingerrors.RateLimitError{RetryAfter: decision.RetryAfter}
		v.fail(metrics.OutcomeRateLimited, rlErr.Error(), nil)
		return models.Bid{}, rlErr
	}

	fresh, err := v.freshCurrentBid(ctx, auction.Item)
	if err != nil {
		v.fail(metrics.OutcomeFailed, msgNetwork, nil)
		return models.Bid{}, err
	}
	if err := v.validator.Recheck(res.Bid.Amount, fresh); err != nil {
		v.rec.Offer(fresh)
		v.fail(metrics.OutcomeConflict, v.conflictMessage(err, fresh), nil)
		return models.Bid{}, err
	}

	created, err := v.store.CreateBid(ctx, models.Bid{
		BidID:       utils.GenerateID(),
		ItemID:      v.itemID,
		BidderName:  res.Bid.Name,
		BidderEmail: res.Bid.Email,
		BidderPhone: res.Bid.Phone,
		Amount:      res.Bid.Amount,
		CreatedAt:   v.now().UTC(),
	})
	if err != nil {
		return models.Bid{}, v.createFailed(ctx, err)
	}

	v.rec.ApplyOwnBid(v.ctx, created)
	v.succeed(ctx, form.Mode, created)
	metrics.BidSubmissions.WithLabelValues(metrics.OutcomeAccepted).Inc()
	utils.Info("service: bid placed", map[string]any{
		"component": "bidding",
		"item_id":   v.itemID,
		"bid_id":    created.BidID,
		"amount":    created.Amount,
		"mode":      string(form.Mode),
	})
	return created, nil
}

// bidderFor picks the identity source for a submission. Must be called with v.mu held.
func (v *View) bidderFor(form models.BidForm) (models.BidderIdentity, error) {
	switch form.Mode {
	case models.ModeNew, "":
		return models.BidderIdentity{Name: form.Name, Email: form.Email, Phone: form.Phone}, nil
	case models.ModeReturning:
		if v.ident.Returning == nil {
			return models.BidderIdentity{}, fmt.Errorf("service: returning bid without lookup: %w", biddingerrors.ErrNoIdentity)
		}
		return *v.ident.Returning, nil
	case models.ModePersonal:
		if v.ident.CurrentBidder == nil {
			return models.BidderIdentity{}, fmt.Errorf("service: personal bid without bidder: %w", biddingerrors.ErrNoIdentity)
		}
		return *v.ident.CurrentBidder, nil
	}
	return models.BidderIdentity{}, fmt.Errorf("service: unknown bidder mode %q: %w", form.Mode, biddingerrors.ErrInvalidBid)
}

func (v *View) freshCurrentBid(ctx context.Context, item models.Item) (int64, error) {
	highest, err := v.store.GetHighestBid(ctx, v.itemID)
	switch {
	case errors.Is(err, biddingerrors.ErrNoBids):
		return item.StartingBid, nil
	case err != nil:
		return 0, &biddingerrors.NetworkError{Op: "fetch highest bid", Err: err}
	}
	if highest.Amount < item.StartingBid {
		return item.StartingBid, nil
	}
	return highest.Amount, nil
}

func (v *View) conflictMessage(err error, fresh int64) string {
	var conflict *biddingerrors.ConflictError
	if errors.As(err, &conflict) && conflict.Reason == biddingerrors.ReasonMinIncrement {
		return fmt.Sprintf("Bid must be at least %s higher than current bid.",
			utils.FormatCurrency(v.validator.Policy().MinIncrement, v.validator.Policy().Currency))
	}
	return fmt.Sprintf("Bid must be higher than current bid of %s.", utils.FormatCurrency(fresh, v.validator.Policy().Currency))
}

// createFailed maps a rejected insert. A backend conflict means someone else
// got there first, so the price is refreshed before the visitor retries.
func (v *View) createFailed(ctx context.Context, err error) error {
	if errors.Is(err, biddingerrors.ErrBidConflict) {
		if rerr := v.rec.Refresh(ctx); rerr != nil {
			utils.Warn("service: refresh after conflict failed", map[string]any{"component": "bidding", "item_id": v.itemID, "error": rerr.Error()})
		}
		v.fail(metrics.OutcomeConflict, msgBidConflict, nil)
		return &biddingerrors.ConflictError{
			Reason:     "was rejected by the backend",
			CurrentBid: v.rec.State().CurrentBid,
			Err:        err,
		}
	}
	if errors.Is(err, biddingerrors.ErrItemNotFound) {
		v.fail(metrics.OutcomeFailed, msgSubmitFailed, nil)
		return fmt.Errorf("service: create bid: %w", err)
	}

	utils.Error("service: create bid failed", map[string]any{"component": "bidding", "item_id": v.itemID, "error": err.Error()})
	v.fail(metrics.OutcomeFailed, msgNetwork, nil)
	return &biddingerrors.NetworkError{Op: "create bid", Err: err}
}

func (v *View) fail(outcome, banner string, fields map[string]string) {
	metrics.BidSubmissions.WithLabelValues(outcome).Inc()
	v.mu.Lock()
	v.form.Error = banner
	v.form.FieldErrors = fields
	v.mu.Unlock()
}

// succeed records the bidder for the session and refreshes their bids.
func (v *View) succeed(ctx context.Context, mode models.BidderMode, bid models.Bid) {
	bidder := bid.Identity()
	money := utils.FormatCurrency(bid.Amount, v.validator.Policy().Currency)

	v.mu.Lock()
	v.ident.CurrentBidder = &bidder
	v.ident.WelcomeBack = nil
	switch mode {
	case models.ModeReturning:
		v.form.Success = fmt.Sprintf("Welcome back %s! Your bid of %s has been submitted successfully!", bidder.Name, money)
	case models.ModePersonal:
		v.form.Success = "Bid submitted successfully!"
	default:
		v.form.Success = fmt.Sprintf("Congratulations! Your bid of %s has been submitted successfully! You are now the highest bidder.", money)
	}
	v.mu.Unlock()

	v.remember(ctx, bidder)
}

// remember persists an established bidder for the browser session and loads
// their bids. The caller has already set ident.CurrentBidder.
func (v *View) remember(ctx context.Context, bidder models.BidderIdentity) {
	if v.sessions != nil {
		if err := v.sessions.Save(ctx, v.sessionID, bidder); err != nil {
			utils.Warn("service: saving bidder session failed", map[string]any{"component": "bidding", "error": err.Error()})
		}
	}
	if _, err := v.LoadPersonalBids(ctx); err != nil && !errors.Is(err, biddingerrors.ErrViewClosed) {
		utils.Warn("service: refreshing personal bids failed", map[string]any{"component": "bidding", "error": err.Error()})
	}
}

// SearchBidder looks up a returning bidder for the Returning tab. A found
// bidder becomes the bidder of the session.
func (v *View) SearchBidder(ctx context.Context, email, phone string) (models.BidderIdentity, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return models.BidderIdentity{}, biddingerrors.ErrViewClosed
	}
	v.ident.Lookup = models.LookupSearching
	v.ident.Returning = nil
	v.form.Error = ""
	v.mu.Unlock()
	v.publish()

	found, err := v.resolver.Resolve(ctx, v.itemID, validation.Clean(email), validation.Clean(phone))

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return models.BidderIdentity{}, biddingerrors.ErrViewClosed
	}
	if err != nil {
		v.ident.Lookup = models.LookupNotFound
		v.form.Error = "No previous bids found with this email or phone number."
	} else {
		v.ident.Lookup = models.LookupFound
		v.ident.Returning = &found
		current := found
		v.ident.CurrentBidder = &current
	}
	v.mu.Unlock()
	v.publish()

	recordLookup("search", err)
	if err != nil {
		return models.BidderIdentity{}, err
	}
	v.remember(ctx, found)
	return found, nil
}

// ContactChanged is called on every keystroke in the New Bidder contact
// fields. After the debounce delay a matching previous bidder is offered as
// a welcome-back notice; nothing is switched automatically.
func (v *View) ContactChanged(email, phone string) {
	email, phone = validation.Clean(email), validation.Clean(phone)
	if email == "" && phone == "" {
		v.debounce.Cancel()
		v.mu.Lock()
		v.ident.WelcomeBack = nil
		v.mu.Unlock()
		v.publish()
		return
	}

	v.debounce.Trigger(func() {
		found, err := v.resolver.Resolve(v.ctx, v.itemID, email, phone)
		recordLookup("detect", err)

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		switch {
		case err != nil:
			v.ident.WelcomeBack = nil
		case v.ident.CurrentBidder != nil && *v.ident.CurrentBidder == found:
			v.ident.WelcomeBack = nil
		default:
			v.ident.WelcomeBack = &found
		}
		v.mu.Unlock()
		v.publish()
	})
}

// AcceptWelcomeBack switches to the Returning tab with the detected bidder,
// who becomes the bidder of the session.
func (v *View) AcceptWelcomeBack(ctx context.Context) error {
	v.mu.Lock()
	if v.ident.WelcomeBack == nil {
		v.mu.Unlock()
		return fmt.Errorf("service: no welcome-back bidder detected: %w", biddingerrors.ErrNoIdentity)
	}
	found := *v.ident.WelcomeBack
	current := found
	v.ident.Returning = &found
	v.ident.CurrentBidder = &current
	v.ident.WelcomeBack = nil
	v.ident.Lookup = models.LookupFound
	v.ident.Tab = models.TabReturning
	v.form = models.FormState{}
	v.mu.Unlock()
	v.publish()

	v.remember(ctx, found)
	return nil
}

// SwitchTab changes the bidder panel. Going back to New resets the
// returning-bidder lookup.
func (v *View) SwitchTab(ctx context.Context, tab models.Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("service: unknown tab %q: %w", tab, biddingerrors.ErrInvalidBid)
	}

	v.mu.Lock()
	v.ident.Tab = tab
	v.form = models.FormState{Submitting: v.form.Submitting}
	if tab == models.TabNew {
		v.ident.Returning = nil
		v.ident.Lookup = models.LookupIdle
	}
	hasBidder := v.ident.CurrentBidder != nil
	v.mu.Unlock()

	if tab == models.TabYourBids && hasBidder {
		if _, err := v.LoadPersonalBids(ctx); err != nil {
			return err
		}
	}
	v.publish()
	return nil
}

// LoadPersonalBids fetches every bid the current bidder placed on the item.
func (v *View) LoadPersonalBids(ctx context.Context) ([]models.Bid, error) {
	v.mu.Lock()
	if v.ident.CurrentBidder == nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("service: personal bids: %w", biddingerrors.ErrNoIdentity)
	}
	bidder := *v.ident.CurrentBidder
	v.mu.Unlock()

	bids, err := v.store.GetBidsByIdentity(ctx, v.itemID, bidder.Email, bidder.Phone)
	if err != nil {
		v.mu.Lock()
		v.form.Error = msgLoadBidsFailed
		v.mu.Unlock()
		v.publish()
		return nil, &biddingerrors.NetworkError{Op: "load personal bids", Err: err}
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, biddingerrors.ErrViewClosed
	}
	// the bidder may have logged out meanwhile
	if v.ident.CurrentBidder != nil && *v.ident.CurrentBidder == bidder {
		v.ident.PersonalBids = bids
	}
	v.mu.Unlock()
	v.publish()
	return append([]models.Bid(nil), bids...), nil
}

// Logout forgets the bidder in memory and in durable storage.
func (v *View) Logout(ctx context.Context) error {
	v.forget()
	if v.sessions == nil {
		return nil
	}
	if err := v.sessions.Clear(ctx, v.sessionID); err != nil {
		return fmt.Errorf("service: clear bidder session: %w", err)
	}
	return nil
}

func (v *View) forget() {
	v.mu.Lock()
	v.ident = models.IdentityState{Tab: models.TabNew, Lookup: models.LookupIdle}
	v.form = models.FormState{Submitting: v.form.Submitting}
	v.mu.Unlock()
	v.publish()
}

// onNewBid keeps the personal bid list current when anyone bids.
func (v *View) onNewBid(ctx context.Context, _ models.Bid) {
	v.mu.Lock()
	hasBidder := v.ident.CurrentBidder != nil && !v.closed
	v.mu.Unlock()
	if !hasBidder {
		return
	}
	if _, err := v.LoadPersonalBids(ctx); err != nil && !errors.Is(err, biddingerrors.ErrViewClosed) {
		utils.Warn("service: refreshing personal bids after push failed", map[string]any{"component": "bidding", "error": err.Error()})
	}
}

func recordLookup(kind string, err error) {
	result := "found"
	switch {
	case err == nil:
	case errors.Is(err, biddingerrors.ErrBackendUnavailable):
		result = "failed"
	default:
		result = "not_found"
	}
	metrics.BidderLookups.WithLabelValues(kind, result).Inc()
}

func amountsOf(bids []models.Bid) []int64 {
	out := make([]int64, 0, len(bids))
	for _, b := range bids {
		out = append(out, b.Amount)
	}
	return out
}
