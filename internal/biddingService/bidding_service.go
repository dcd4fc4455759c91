package bidding

import (
	"context"
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
)

// Config holds the tunables of the bidding service.
type Config struct {
	Policy validation.Policy
	// PersistSession remembers the bidder of a browser session across reloads.
	PersistSession bool
	SessionTTL     time.Duration
	RateLimit      int
	RateWindow     time.Duration
	LookupDebounce time.Duration
	// ViewIdleTTL unmounts views nobody has touched or watched for this long.
	ViewIdleTTL time.Duration
	Reconciler  reconciler.Options
	Now         func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Policy:         validation.DefaultPolicy(),
		PersistSession: true,
		SessionTTL:     30 * 24 * time.Hour,
		RateLimit:      3,
		RateWindow:     time.Minute,
		LookupDebounce: time.Second,
		ViewIdleTTL:    30 * time.Minute,
		Reconciler:     reconciler.DefaultOptions(),
		Now:            time.Now,
	}
}

type viewKey struct {
	sessionID string
	itemID    string
}

// BiddingService manages one View per browser session and item and routes
// every visitor action to it.
type BiddingService struct {
	store     repository.AuctionDB
	sessions  identity.SessionStore
	limiter   *ratelimit.Limiter
	validator *validation.Validator
	resolver  *identity.Resolver
	cfg       Config

	mu     sync.Mutex
	views  map[viewKey]*View
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// NewBiddingService creates a BiddingService. sessions may be nil, in which
// case bidder sessions are kept in memory.
func NewBiddingService(repo repository.AuctionDB, sessions identity.SessionStore, cfg Config) *BiddingService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sessions == nil {
		sessions = identity.NewMemorySessionStore(cfg.SessionTTL)
	}

	s := &BiddingService{
		store:     repo,
		sessions:  sessions,
		limiter:   ratelimit.New(cfg.RateLimit, cfg.RateWindow, cfg.Now),
		validator: validation.New(cfg.Policy),
		resolver:  identity.NewResolver(repo),
		cfg:       cfg,
		views:     make(map[viewKey]*View),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Policy returns the validation rules in force.
func (s *BiddingService) Policy() validation.Policy { return s.cfg.Policy }

// View returns the mounted view for the session and item, mounting it on
// first use.
func (s *BiddingService) View(ctx context.Context, sessionID, itemID string) (*View, error) {
	if sessionID == "" || itemID == "" {
		return nil, fmt.Errorf("service: %w - missing session or item ID", biddingerrors.ErrInvalidBid)
	}
	key := viewKey{sessionID: sessionID, itemID: itemID}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, biddingerrors.ErrViewClosed
	}
	if v, ok := s.views[key]; ok {
		s.mu.Unlock()
		select {
		case <-v.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if v.mountErr != nil {
			return nil, v.mountErr
		}
		v.touch()
		return v, nil
	}
	v := newView(s, sessionID, itemID)
	s.views[key] = v
	s.mu.Unlock()

	err := v.Mount(ctx)
	v.mountErr = err
	close(v.ready)
	if err != nil {
		s.mu.Lock()
		if s.views[key] == v {
			delete(s.views, key)
		}
		s.mu.Unlock()
		v.Unmount()
		return nil, err
	}

	metrics.ActiveViews.Inc()
	utils.Debug("service: view mounted", map[string]any{
		"component":  "bidding",
		"session_id": sessionID,
		"item_id":    itemID,
	})
	return v, nil
}

// Unmount tears down the view for the session and item if one is mounted.
func (s *BiddingService) Unmount(sessionID, itemID string) bool {
	key := viewKey{sessionID: sessionID, itemID: itemID}

	s.mu.Lock()
	v, ok := s.views[key]
	if ok {
		delete(s.views, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	<-v.ready
	v.Unmount()
	if v.mountErr == nil {
		metrics.ActiveViews.Dec()
	}
	return true
}

// State returns the render state of a view.
func (s *BiddingService) State(ctx context.Context, sessionID, itemID string) (models.ViewState, error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return models.ViewState{}, err
	}
	return v.State(), nil
}

// Watch streams the view state until cancel is called.
func (s *BiddingService) Watch(ctx context.Context, sessionID, itemID string) (<-chan models.ViewState, func(), error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := v.Watch()
	return ch, func() {
		cancel()
		v.touch()
	}, nil
}

// PlaceBid submits a bid from the given view and returns the created bid
// together with the resulting view state. The state is returned even when
// the bid was refused so the form can show its errors.
func (s *BiddingService) PlaceBid(ctx context.Context, sessionID, itemID string, form models.BidForm) (models.Bid, models.ViewState, error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return models.Bid{}, models.ViewState{}, err
	}
	bid, err := v.PlaceBid(ctx, form)
	return bid, v.State(), err
}

// SearchBidder looks up a returning bidder by email or phone.
func (s *BiddingService) SearchBidder(ctx context.Context, sessionID, itemID, email, phone string) (models.BidderIdentity, error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return models.BidderIdentity{}, err
	}
	return v.SearchBidder(ctx, email, phone)
}

// ContactChanged feeds keystrokes of the New Bidder contact fields to the
// implicit returning-bidder detection.
func (s *BiddingService) ContactChanged(ctx context.Context, sessionID, itemID, email, phone string) error {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return err
	}
	v.ContactChanged(email, phone)
	return nil
}

// AcceptWelcomeBack adopts the bidder offered by implicit detection.
func (s *BiddingService) AcceptWelcomeBack(ctx context.Context, sessionID, itemID string) (models.ViewState, error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return models.ViewState{}, err
	}
	if err := v.AcceptWelcomeBack(ctx); err != nil {
		return v.State(), err
	}
	return v.State(), nil
}

// SwitchTab changes the bidder panel of a view.
func (s *BiddingService) SwitchTab(ctx context.Context, sessionID, itemID string, tab models.Tab) (models.ViewState, error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return models.ViewState{}, err
	}
	if err := v.SwitchTab(ctx, tab); err != nil {
		return v.State(), err
	}
	return v.State(), nil
}

// PersonalBids returns the bids of the bidder established for the session.
func (s *BiddingService) PersonalBids(ctx context.Context, sessionID, itemID string) ([]models.Bid, error) {
	v, err := s.View(ctx, sessionID, itemID)
	if err != nil {
		return nil, err
	}
	return v.LoadPersonalBids(ctx)
}

// Logout forgets the session's bidder in every mounted view and in the
// session store. It does not mount anything.
func (s *BiddingService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("service: %w - missing session ID", biddingerrors.ErrInvalidBid)
	}

	s.mu.Lock()
	var views []*View
	for key, v := range s.views {
		if key.sessionID == sessionID {
			views = append(views, v)
		}
	}
	s.mu.Unlock()

	for _, v := range views {
		<-v.ready
		v.forget()
	}
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("service: clear bidder session: %w", err)
	}
	utils.Info("service: bidder logged out", map[string]any{"component": "bidding", "session_id": sessionID})
	return nil
}

// EvictIdle unmounts views that were neither touched since cutoff nor are
// being watched. It returns the number of views removed.
func (s *BiddingService) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	var idle []viewKey
	for key, v := range s.views {
		select {
		case <-v.ready:
		default:
			continue
		}
		if v.idleSince().Before(cutoff) && !v.watched() {
			idle = append(idle, key)
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, key := range idle {
		if s.Unmount(key.sessionID, key.itemID) {
			evicted++
		}
	}
	if evicted > 0 {
		utils.Debug("service: evicted idle views", map[string]any{"component": "bidding", "count": evicted})
	}
	return evicted
}

func (s *BiddingService) janitor() {
	defer close(s.done)
	if s.cfg.ViewIdleTTL <= 0 {
		<-s.stop
		return
	}

	interval := s.cfg.ViewIdleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.EvictIdle(s.cfg.Now().Add(-s.cfg.ViewIdleTTL))
		}
	}
}

// Close unmounts every view and stops the janitor.
func (s *BiddingService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	keys := make([]viewKey, 0, len(s.views))
	for key := range s.views {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	for _, key := range keys {
		s.Unmount(key.sessionID, key.itemID)
	}
}
