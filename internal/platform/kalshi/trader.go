package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/polymathbot/polymath/internal/domain"
)

// Trader places orders on Kalshi with immediate-or-cancel semantics: a
// limit order that rests instead of crossing is cancelled, because a
// resting arbitrage leg is just unpriced inventory.
type Trader struct {
	client *Client
	logger *slog.Logger
}

// NewTrader wraps an authenticated client.
func NewTrader(client *Client, logger *slog.Logger) *Trader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trader{
		client: client,
		logger: logger.With(slog.String("component", "kalshi_trader")),
	}
}

// Venue implements domain.OrderPlacer.
func (t *Trader) Venue() domain.Venue { return domain.VenueKalshi }

// PlaceOrder implements domain.OrderPlacer. A zero limit price submits a
// market order; otherwise a limit order at the requested price.
func (t *Trader) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	order := apiOrder{
		Ticker:        req.MarketID,
		ClientOrderID: uuid.New().String(),
		Action:        string(req.Side),
		Side:          string(req.Contract),
		Type:          "limit",
		Count:         int64(math.Floor(req.Size)),
	}
	if order.Count <= 0 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: order size %.2f rounds to zero contracts", req.Size)
	}

	if req.LimitPrice <= 0 {
		order.Type = "market"
	} else {
		cents := toCents(req.LimitPrice)
		if req.Contract == domain.ContractYes {
			order.YesPrice = &cents
		} else {
			order.NoPrice = &cents
		}
	}

	status, err := t.client.createOrder(ctx, order)
	if err != nil {
		return domain.OrderResult{}, err
	}

	res := t.classify(status)
	if status.Status == "resting" || status.Status == "pending" {
		if cancelErr := t.client.cancelOrder(ctx, status.OrderID); cancelErr != nil {
			t.logger.Warn("cancel of resting order failed",
				slog.String("order_id", status.OrderID),
				slog.String("error", cancelErr.Error()),
			)
		}
	}
	return res, nil
}

// CheckOrder implements domain.OrderPlacer; it reconciles an order whose
// placement outcome is unknown.
func (t *Trader) CheckOrder(ctx context.Context, orderID string) (domain.OrderResult, error) {
	status, err := t.client.getOrder(ctx, orderID)
	if err != nil {
		return domain.OrderResult{}, err
	}

	res := t.classify(status)
	if status.Status == "resting" || status.Status == "pending" {
		if cancelErr := t.client.cancelOrder(ctx, status.OrderID); cancelErr != nil {
			t.logger.Warn("cancel during reconciliation failed",
				slog.String("order_id", status.OrderID),
				slog.String("error", cancelErr.Error()),
			)
		}
	}
	return res, nil
}

// classify maps an exchange order status onto the fill/reject outcome. A
// partially filled order reports the filled size; the cancelled remainder
// is not our position.
func (t *Trader) classify(status apiOrderStatus) domain.OrderResult {
	filled := status.TakerFillCount + status.MakerFillCount

	res := domain.OrderResult{OrderID: status.OrderID}
	if filled <= 0 {
		res.Status = domain.OrderStatusRejected
		res.Message = fmt.Sprintf("no fill (exchange status %q)", status.Status)
		return res
	}

	price := status.YesPrice
	if status.Side == "no" {
		price = status.NoPrice
	}
	if status.TakerFillCount > 0 && status.TakerFillCost > 0 {
		// Average taker price beats the quoted limit when available.
		res.FillPrice = float64(status.TakerFillCost) / float64(status.TakerFillCount) / 100
	} else {
		res.FillPrice = float64(price) / 100
	}

	res.Status = domain.OrderStatusFilled
	res.FillSize = float64(filled)
	if status.RemainingCount > 0 {
		res.Message = fmt.Sprintf("partial fill %d, %d cancelled", filled, status.RemainingCount)
	}
	return res
}

func toCents(price float64) int64 {
	cents := int64(math.Round(price * 100))
	if cents < 1 {
		cents = 1
	}
	if cents > 99 {
		cents = 99
	}
	return cents
}
