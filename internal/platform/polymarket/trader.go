package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/polymathbot/polymath/internal/domain"
)

// Trader places fill-and-kill orders on the CLOB. Legs either take
// liquidity immediately or die; nothing is left resting.
type Trader struct {
	clob   *ClobClient
	logger *slog.Logger
}

// NewTrader wraps an authenticated CLOB client. DeriveAPIKey must have
// run before the first placement.
func NewTrader(clob *ClobClient, logger *slog.Logger) *Trader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trader{
		clob:   clob,
		logger: logger.With(slog.String("component", "polymarket_trader")),
	}
}

// Venue implements domain.OrderPlacer.
func (t *Trader) Venue() domain.Venue { return domain.VenuePolymarket }

// PlaceOrder implements domain.OrderPlacer. The request's TokenID selects
// the outcome token; a zero limit price on a sell prices at the best bid
// via a deep-crossing limit.
func (t *Trader) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.TokenID == "" {
		return domain.OrderResult{}, fmt.Errorf("polymarket: order for %s has no token ID", req.MarketID)
	}

	buy := req.Side == domain.OrderSideBuy
	price := req.LimitPrice
	if price <= 0 {
		// Marketable fallback: cross the whole book. FAK semantics cap
		// the damage at the requested size.
		if buy {
			price = 0.99
		} else {
			price = 0.01
		}
	}

	order, err := t.clob.buildOrder(req.TokenID, buy, price, req.Size)
	if err != nil {
		return domain.OrderResult{}, err
	}

	result, err := t.clob.postOrder(ctx, order)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return t.classifyResult(result, price, req.Size), nil
}

// CheckOrder implements domain.OrderPlacer; it reconciles an order whose
// placement outcome is unknown.
func (t *Trader) CheckOrder(ctx context.Context, orderID string) (domain.OrderResult, error) {
	order, err := t.clob.getOrder(ctx, orderID)
	if err != nil {
		return domain.OrderResult{}, err
	}

	res := domain.OrderResult{OrderID: order.ID}
	matched, _ := strconv.ParseFloat(order.SizeMatched, 64)
	price, _ := strconv.ParseFloat(order.Price, 64)

	switch strings.ToUpper(order.Status) {
	case "MATCHED":
		res.Status = domain.OrderStatusFilled
		res.FillPrice = price
		res.FillSize = matched
	case "LIVE":
		// A live FAK should not exist; cancel it and report what filled.
		if err := t.clob.cancelOrder(ctx, order.ID); err != nil {
			t.logger.Warn("cancel during reconciliation failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
		if matched > 0 {
			res.Status = domain.OrderStatusFilled
			res.FillPrice = price
			res.FillSize = matched
			res.Message = "partial fill, remainder cancelled"
		} else {
			res.Status = domain.OrderStatusRejected
			res.Message = "order was resting unfilled, cancelled"
		}
	default:
		if matched > 0 {
			res.Status = domain.OrderStatusFilled
			res.FillPrice = price
			res.FillSize = matched
		} else {
			res.Status = domain.OrderStatusRejected
			res.Message = fmt.Sprintf("no fill (exchange status %q)", order.Status)
		}
	}
	return res, nil
}

// classifyResult maps a submission response to the fill/reject outcome.
func (t *Trader) classifyResult(result clobOrderResult, price, size float64) domain.OrderResult {
	res := domain.OrderResult{OrderID: result.OrderID, Message: result.ErrorMsg}

	if !result.Success {
		res.Status = domain.OrderStatusRejected
		return res
	}

	switch strings.ToLower(result.Status) {
	case "matched":
		res.Status = domain.OrderStatusFilled
		res.FillPrice = price
		res.FillSize = size
	case "delayed":
		// Accepted but not yet matched; the caller reconciles.
		res.Status = domain.OrderStatusTimeout
		res.Message = "order delayed by exchange"
	default:
		res.Status = domain.OrderStatusRejected
		if res.Message == "" {
			res.Message = fmt.Sprintf("no fill (exchange status %q)", result.Status)
		}
	}
	return res
}
