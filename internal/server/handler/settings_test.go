package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/polymathbot/polymath/internal/detect"
	"github.com/polymathbot/polymath/internal/matching"
	"github.com/polymathbot/polymath/internal/scanner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScanner() *scanner.Scanner {
	matcher := matching.New(matching.Config{Threshold: 80, Logger: testLogger()})
	detector := detect.New(nil, testLogger())
	settings := scanner.Settings{
		ScanInterval:   5 * time.Second,
		MinProfitCents: 2,
		MatchThreshold: 80,
		MaxPositionUSD: 100,
	}
	return scanner.New(nil, matcher, detector, nil, nil, nil, settings, testLogger())
}

func TestSettingsGet(t *testing.T) {
	h := NewSettingsHandler(testScanner(), true, testLogger())

	rr := httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got settingsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ScanIntervalSeconds == nil || *got.ScanIntervalSeconds != 5 {
		t.Errorf("scan_interval_seconds = %v, want 5", got.ScanIntervalSeconds)
	}
	if got.MinProfitCents == nil || *got.MinProfitCents != 2 {
		t.Errorf("min_profit_cents = %v, want 2", got.MinProfitCents)
	}
}

func TestSettingsUpdatePartialPatch(t *testing.T) {
	s := testScanner()
	h := NewSettingsHandler(s, true, testLogger())

	body := strings.NewReader(`{"min_profit_cents": 4.5}`)
	rr := httptest.NewRecorder()
	h.Update(rr, httptest.NewRequest(http.MethodPost, "/api/settings", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got settingsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got.MinProfitCents != 4.5 {
		t.Errorf("min_profit_cents = %g, want 4.5", *got.MinProfitCents)
	}
	// Unpatched fields keep their values.
	if *got.ScanIntervalSeconds != 5 || *got.MaxPositionUSD != 100 {
		t.Errorf("unpatched fields changed: %+v", got)
	}
}

func TestSettingsSuccessivePatchesAccumulate(t *testing.T) {
	// Two patches inside one scan interval: the second lands while the
	// first is still staged, and must not revert its fields.
	s := testScanner()
	h := NewSettingsHandler(s, true, testLogger())

	rr := httptest.NewRecorder()
	h.Update(rr, httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"auto_execute": true}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("first patch status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.Update(rr, httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"min_profit_cents": 5}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("second patch status = %d, body %s", rr.Code, rr.Body.String())
	}

	var got settingsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AutoExecute == nil || !*got.AutoExecute {
		t.Error("second patch dropped the staged auto_execute from the first")
	}
	if *got.MinProfitCents != 5 {
		t.Errorf("min_profit_cents = %g, want 5", *got.MinProfitCents)
	}

	staged := s.StagedSettings()
	if !staged.AutoExecute || staged.MinProfitCents != 5 {
		t.Errorf("staged settings = %+v, want both patches", staged)
	}
}

func TestSettingsAutoExecuteRequiresTradeMode(t *testing.T) {
	// In scan mode the guard has no order placers; arming it would only
	// produce a failed attempt per executable opportunity each cycle.
	s := testScanner()
	h := NewSettingsHandler(s, false, testLogger())

	rr := httptest.NewRecorder()
	h.Update(rr, httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"auto_execute": true}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if s.StagedSettings().AutoExecute {
		t.Error("auto_execute staged despite rejection")
	}

	// Explicitly turning it off is always fine.
	rr = httptest.NewRecorder()
	h.Update(rr, httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"auto_execute": false}`)))
	if rr.Code != http.StatusOK {
		t.Errorf("disable status = %d, want 200", rr.Code)
	}
}

func TestSettingsUpdateValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"interval below 1s", `{"scan_interval_seconds": 0.5}`},
		{"negative profit", `{"min_profit_cents": -1}`},
		{"threshold over 100", `{"match_threshold": 101}`},
		{"negative position", `{"max_position_usd": -5}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSettingsHandler(testScanner(), true, testLogger())
			rr := httptest.NewRecorder()
			h.Update(rr, httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
				t.Errorf("error body = %s", rr.Body.String())
			}
		})
	}
}

func TestOpportunitiesEmptySnapshot(t *testing.T) {
	h := NewScanHandler(testScanner(), testLogger())

	rr := httptest.NewRecorder()
	h.Opportunities(rr, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Opportunities []json.RawMessage `json:"opportunities"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Opportunities == nil {
		t.Error("opportunities is null, want an empty array")
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=9999", 500},
		{"?limit=0", 50},
		{"?limit=abc", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/executions"+tt.query, nil)
		if got := parseLimit(r, 50, 500); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
