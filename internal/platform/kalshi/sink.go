package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Sink implements domain.OrderSink over the REST client: a quote becomes two
// resting limit buys, one per side.
type Sink struct {
	client *Client
	logger *slog.Logger
}

var _ domain.OrderSink = (*Sink)(nil)

// NewSink creates an order sink.
func NewSink(client *Client, logger *slog.Logger) *Sink {
	return &Sink{client: client, logger: logger.With(slog.String("component", "kalshi_orders"))}
}

// PlaceQuote places the YES and NO legs of a quote. If the NO leg fails after
// the YES leg rested, the YES leg is cancelled so a half-placed quote never
// rests.
func (s *Sink) PlaceQuote(ctx context.Context, q domain.Quote) (string, string, error) {
	yesPrice := int64(math.Round(q.YesPrice))
	noPrice := int64(math.Round(q.NoPrice))

	yes, err := s.client.PlaceOrder(ctx, Order{
		Ticker:   q.MarketID,
		Action:   "buy",
		Side:     "yes",
		Type:     "limit",
		Count:    int64(q.Size),
		YesPrice: &yesPrice,
	})
	if err != nil {
		return "", "", fmt.Errorf("kalshi: quote %s yes leg: %w", q.MarketID, err)
	}

	no, err := s.client.PlaceOrder(ctx, Order{
		Ticker:  q.MarketID,
		Action:  "buy",
		Side:    "no",
		Type:    "limit",
		Count:   int64(q.Size),
		NoPrice: &noPrice,
	})
	if err != nil {
		if cancelErr := s.client.CancelOrder(ctx, yes.OrderID); cancelErr != nil {
			s.logger.Error("failed to unwind yes leg",
				slog.String("order_id", yes.OrderID), slog.Any("error", cancelErr))
		}
		return "", "", fmt.Errorf("kalshi: quote %s no leg: %w", q.MarketID, err)
	}

	return yes.OrderID, no.OrderID, nil
}

// CancelOrder cancels one resting order.
func (s *Sink) CancelOrder(ctx context.Context, orderID string) error {
	return s.client.CancelOrder(ctx, orderID)
}
