package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/polymathbot/polymath/internal/domain"
)

func TestStringListDecoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain array", `["Yes","No"]`, []string{"Yes", "No"}},
		{"doubly encoded", `"[\"Yes\",\"No\"]"`, []string{"Yes", "No"}},
		{"empty string", `""`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l stringList
			if err := json.Unmarshal([]byte(tt.raw), &l); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.raw, err)
			}
			if len(l) != len(tt.want) {
				t.Fatalf("got %v, want %v", l, tt.want)
			}
			for i := range l {
				if l[i] != tt.want[i] {
					t.Errorf("got %v, want %v", l, tt.want)
				}
			}
		})
	}
}

func TestFlexBoolDecoding(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"TRUE"`, true},
		{`"false"`, false},
		{`"1"`, true},
	}
	for _, tt := range tests {
		var f flexBool
		if err := json.Unmarshal([]byte(tt.raw), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if bool(f) != tt.want {
			t.Errorf("flexBool(%s) = %v, want %v", tt.raw, f, tt.want)
		}
	}
}

func binaryGammaMarket() gammaMarket {
	return gammaMarket{
		ID:              "0xabc",
		Question:        "Will Bitcoin reach $100,000?",
		Slug:            "bitcoin-100k",
		Active:          true,
		Outcomes:        stringList{"Yes", "No"},
		OutcomePrices:   stringList{"0.47", "0.53"},
		ClobTokenIDs:    stringList{"tok-yes", "tok-no"},
		Volume:          "125000.5",
		BestBid:         0.46,
		BestAsk:         0.48,
		EndDateISO:      "2026-12-31T12:00:00Z",
		EnableOrderBook: true,
	}
}

func TestToDomainBinaryMarket(t *testing.T) {
	raw := binaryGammaMarket()
	m, ok := toDomain(&raw)
	if !ok {
		t.Fatal("binary market rejected")
	}
	if m.Venue != domain.VenuePolymarket || m.ID != "0xabc" {
		t.Errorf("identity = %s/%s", m.Venue, m.ID)
	}
	if m.YesPrice != 0.47 || m.NoPrice != 0.53 {
		t.Errorf("prices = %.2f/%.2f", m.YesPrice, m.NoPrice)
	}
	if m.TokenIDs != [2]string{"tok-yes", "tok-no"} {
		t.Errorf("TokenIDs = %v", m.TokenIDs)
	}
	// YES quotes mirror onto the NO side.
	if m.YesAsk != 0.48 || m.NoBid != 0.52 {
		t.Errorf("ask side = %.2f yes ask, %.2f no bid", m.YesAsk, m.NoBid)
	}
	if m.YesBid != 0.46 || m.NoAsk != 0.54 {
		t.Errorf("bid side = %.2f yes bid, %.2f no ask", m.YesBid, m.NoAsk)
	}
	if m.Volume != 125000.5 {
		t.Errorf("Volume = %g", m.Volume)
	}
	if m.Fees.Rate != FeeRate {
		t.Errorf("fee rate = %g, want %g", m.Fees.Rate, FeeRate)
	}
	if m.Expiration == nil {
		t.Error("expiration not parsed")
	}
}

func TestToDomainRejectsNonTradable(t *testing.T) {
	mutations := map[string]func(*gammaMarket){
		"closed":          func(m *gammaMarket) { m.Closed = true },
		"inactive":        func(m *gammaMarket) { m.Active = false },
		"no orderbook":    func(m *gammaMarket) { m.EnableOrderBook = false },
		"not binary":      func(m *gammaMarket) { m.Outcomes = stringList{"A", "B", "C"} },
		"missing tokens":  func(m *gammaMarket) { m.ClobTokenIDs = stringList{"only-one"} },
		"settled at zero": func(m *gammaMarket) { m.OutcomePrices = stringList{"0", "1"} },
		"settled at one":  func(m *gammaMarket) { m.OutcomePrices = stringList{"1", "0"} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			raw := binaryGammaMarket()
			mutate(&raw)
			if _, ok := toDomain(&raw); ok {
				t.Error("non-tradable market accepted")
			}
		})
	}
}

func TestGammaMarketDecoding(t *testing.T) {
	// Gamma double-encodes outcome arrays and sends active as a string on
	// some endpoints; the DTO must absorb both.
	raw := `{
		"id": "0xabc",
		"question": "Will it happen?",
		"active": "true",
		"closed": false,
		"outcomes": "[\"Yes\", \"No\"]",
		"outcomePrices": "[\"0.40\", \"0.60\"]",
		"clobTokenIds": "[\"t1\", \"t2\"]",
		"volume": "5000",
		"enableOrderBook": true
	}`
	var m gammaMarket
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dm, ok := toDomain(&m)
	if !ok {
		t.Fatal("decoded market rejected")
	}
	if dm.YesPrice != 0.40 || dm.TokenIDs[1] != "t2" {
		t.Errorf("converted = %+v", dm)
	}
}
