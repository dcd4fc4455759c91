package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	model "charity-auction/internal/models"
	"charity-auction/utils"
)

const (
	notifyChannel  = "bids_inserted"
	minListenRetry = 500 * time.Millisecond
	maxListenRetry = 30 * time.Second
)

// bidNotification is the payload written by the notify_bid_inserted trigger.
type bidNotification struct {
	BidID       string  `json:"bid_id"`
	ItemID      string  `json:"item_id"`
	BidderName  string  `json:"bidder_name"`
	BidderEmail *string `json:"bidder_email"`
	BidderPhone *string `json:"bidder_phone"`
	Amount      int64   `json:"bid_amount"`
	CreatedAtMS int64   `json:"created_at_ms"`
}

func (n bidNotification) bid() model.Bid {
	return model.Bid{
		BidID:       n.BidID,
		ItemID:      n.ItemID,
		BidderName:  n.BidderName,
		BidderEmail: deref(n.BidderEmail),
		BidderPhone: deref(n.BidderPhone),
		Amount:      n.Amount,
		CreatedAt:   time.UnixMilli(n.CreatedAtMS).UTC(),
	}
}

// listen holds one pooled connection in LISTEN mode and republishes every
// notification on the in-process feed. ready receives the outcome of the
// first LISTEN; later failures are logged and retried with backoff.
func (s *Store) listen(ctx context.Context, ready chan<- error) {
	defer close(s.listener)

	backoff := minListenRetry
	first := true
	for {
		err := s.listenOnce(ctx, func() {
			if first {
				ready <- nil
				first = false
			}
			backoff = minListenRetry
		})
		if ctx.Err() != nil {
			return
		}
		if first {
			ready <- fmt.Errorf("pgstore: listen %s: %w", notifyChannel, err)
			return
		}

		utils.Warn("pgstore: notification listener failed, retrying", map[string]any{
			"component": "pgstore",
			"error":     err.Error(),
			"retry_in":  backoff.String(),
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxListenRetry {
			backoff = maxListenRetry
		}
	}
}

func (s *Store) listenOnce(ctx context.Context, subscribed func()) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	subscribed()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			// the connection may still be listening; drop it instead of returning it to the pool
			conn.Conn().Close(context.Background())
			return err
		}

		var payload bidNotification
		if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
			utils.Warn("pgstore: malformed bid notification", map[string]any{
				"component": "pgstore",
				"payload":   n.Payload,
				"error":     err.Error(),
			})
			continue
		}
		s.feed.Publish(payload.bid())
	}
}
