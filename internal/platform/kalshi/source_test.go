package kalshi

import (
	"encoding/json"
	"testing"

	"github.com/polymathbot/polymath/internal/domain"
)

func TestPriceLevelDecoding(t *testing.T) {
	var book apiOrderbook
	raw := `{"yes":[[40,120],[39,300]],"no":[[58,80]]}`
	if err := json.Unmarshal([]byte(raw), &book); err != nil {
		t.Fatalf("unmarshal orderbook: %v", err)
	}
	if len(book.Yes) != 2 || len(book.No) != 1 {
		t.Fatalf("levels = %d yes, %d no", len(book.Yes), len(book.No))
	}
	if book.Yes[0].price() != 40 || book.Yes[0].quantity() != 120 {
		t.Errorf("yes[0] = [%d,%d], want [40,120]", book.Yes[0].price(), book.Yes[0].quantity())
	}
}

func TestBestQuantityPicksHighestBid(t *testing.T) {
	levels := []priceLevel{{39, 300}, {41, 50}, {40, 120}}
	if got := bestQuantity(levels); got != 50 {
		t.Errorf("bestQuantity = %.0f, want size 50 at the 41 bid", got)
	}
	if got := bestQuantity(nil); got != 0 {
		t.Errorf("bestQuantity(nil) = %.0f, want 0", got)
	}
}

func TestToDomainNormalizesCents(t *testing.T) {
	m := toDomain(apiMarket{
		Ticker:         "KXBTC-100K",
		EventTicker:    "KXBTC",
		Title:          "Bitcoin above $100,000",
		Subtitle:       "by Dec 31",
		Status:         "open",
		YesBid:         38,
		YesAsk:         40,
		NoBid:          58,
		NoAsk:          62,
		LastPrice:      39,
		Volume:         1200,
		ExpirationTime: "2026-12-31T23:59:00Z",
	})

	if m.Venue != domain.VenueKalshi || m.ID != "KXBTC-100K" {
		t.Errorf("identity = %s/%s", m.Venue, m.ID)
	}
	if m.Title != "Bitcoin above $100,000 by Dec 31" {
		t.Errorf("Title = %q, want subtitle appended", m.Title)
	}
	if m.YesAsk != 0.40 || m.NoAsk != 0.62 || m.YesBid != 0.38 || m.NoBid != 0.58 {
		t.Errorf("quotes = %.2f/%.2f/%.2f/%.2f, want cents divided by 100",
			m.YesAsk, m.NoAsk, m.YesBid, m.NoBid)
	}
	if m.YesPrice != 0.39 || m.NoPrice != 0.61 {
		t.Errorf("last = %.2f/%.2f, want 0.39/0.61", m.YesPrice, m.NoPrice)
	}
	if m.Expiration == nil || m.Expiration.Year() != 2026 {
		t.Error("expiration not parsed")
	}
	if m.Fees.Kind != domain.FeeKindSettlement || m.Fees.Rate != SettlementFeeRate {
		t.Errorf("fees = %+v", m.Fees)
	}
}

func TestToDomainBadExpiration(t *testing.T) {
	m := toDomain(apiMarket{Ticker: "T", ExpirationTime: "soon"})
	if m.Expiration != nil {
		t.Error("unparseable expiration should stay nil")
	}
}

func TestClassifyOrderStatus(t *testing.T) {
	tr := NewTrader(nil, nil)

	t.Run("no fill", func(t *testing.T) {
		res := tr.classify(apiOrderStatus{OrderID: "o1", Status: "canceled"})
		if res.Status != domain.OrderStatusRejected {
			t.Errorf("Status = %s, want rejected", res.Status)
		}
	})

	t.Run("taker fill uses average cost", func(t *testing.T) {
		res := tr.classify(apiOrderStatus{
			OrderID:        "o2",
			Status:         "executed",
			Side:           "yes",
			TakerFillCount: 10,
			TakerFillCost:  400, // 10 contracts at 40 cents
		})
		if !res.Filled() || res.FillSize != 10 {
			t.Fatalf("result = %+v", res)
		}
		if res.FillPrice != 0.40 {
			t.Errorf("FillPrice = %.2f, want 0.40 average", res.FillPrice)
		}
	})

	t.Run("maker fill uses quoted price", func(t *testing.T) {
		res := tr.classify(apiOrderStatus{
			OrderID:        "o3",
			Status:         "executed",
			Side:           "no",
			NoPrice:        62,
			MakerFillCount: 5,
		})
		if !res.Filled() || res.FillPrice != 0.62 {
			t.Errorf("result = %+v, want fill at 0.62", res)
		}
	})

	t.Run("partial fill notes remainder", func(t *testing.T) {
		res := tr.classify(apiOrderStatus{
			OrderID:        "o4",
			Side:           "yes",
			YesPrice:       40,
			TakerFillCount: 3,
			TakerFillCost:  120,
			RemainingCount: 7,
		})
		if res.FillSize != 3 || res.Message == "" {
			t.Errorf("result = %+v, want partial fill with message", res)
		}
	})
}

func TestToCentsClampsToExchangeRange(t *testing.T) {
	tests := []struct {
		price float64
		want  int64
	}{
		{0.40, 40},
		{0.004, 1}, // floored to the 1 cent minimum
		{1.5, 99},
		{0.995, 99},
	}
	for _, tt := range tests {
		if got := toCents(tt.price); got != tt.want {
			t.Errorf("toCents(%g) = %d, want %d", tt.price, got, tt.want)
		}
	}
}
