package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from JSON bool or string ("true"/"false"); the Gamma
// API sends both depending on endpoint.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList unmarshals Gamma's doubly-encoded arrays: fields like
// "outcomes" arrive as a JSON string containing a JSON array.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	return json.Unmarshal([]byte(s), (*[]string)(l))
}

// gammaMarket is a market as returned by the Gamma discovery API.
type gammaMarket struct {
	ID              string     `json:"id"`
	Question        string     `json:"question"`
	ConditionID     string     `json:"conditionId"`
	Slug            string     `json:"slug"`
	Active          flexBool   `json:"active"`
	Closed          bool       `json:"closed"`
	Outcomes        stringList `json:"outcomes"`      // e.g. ["Yes","No"]
	OutcomePrices   stringList `json:"outcomePrices"` // e.g. ["0.45","0.55"]
	ClobTokenIDs    stringList `json:"clobTokenIds"`
	Volume          string     `json:"volume"`
	BestBid         float64    `json:"bestBid"`
	BestAsk         float64    `json:"bestAsk"`
	EndDateISO      string     `json:"endDateIso"`
	EnableOrderBook bool       `json:"enableOrderBook"`
	EventTitle      string     `json:"groupItemTitle"`
}

// bookLevel is one bid/ask level from the CLOB book endpoint.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// clobBook is the orderbook for one outcome token.
type clobBook struct {
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

// clobOrderResult is the CLOB's answer to an order submission.
type clobOrderResult struct {
	Success      bool       `json:"success"`
	ErrorMsg     string     `json:"errorMsg,omitempty"`
	OrderID      string     `json:"orderID,omitempty"`
	Status       string     `json:"status,omitempty"` // "matched", "live", "delayed", "unmatched"
	MakingAmount string     `json:"makingAmount,omitempty"`
	TakingAmount string     `json:"takingAmount,omitempty"`
}

// clobOrder is an order as returned by the CLOB order-status endpoint.
type clobOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"` // "LIVE", "MATCHED", "CANCELED"
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"` // "BUY" or "SELL"
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}
