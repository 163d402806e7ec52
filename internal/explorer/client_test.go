package explorer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	return c
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		BaseURL:        srv.URL,
		QueryInterval:  time.Millisecond,
		ThrottleAlways: true,
		RetryDelay:     time.Millisecond,
		Logger:         zerolog.Nop(),
	}, testCache(t))
}

const statsBody = `{
	"white": 500, "draws": 300, "black": 200,
	"moves": [
		{"san": "e4", "white": 250, "draws": 150, "black": 100},
		{"san": "d4", "white": 30, "draws": 20, "black": 10},
		{"san": "h4", "white": 0, "draws": 0, "black": 0}
	]
}`

func TestClient_StatsProcessesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, statsBody)
	}))
	defer srv.Close()

	client := testClient(t, srv)
	stats, err := client.Stats(context.Background(), testFEN, 1600, 2200, []string{"blitz"})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.TotalGames != 1000 {
		t.Errorf("TotalGames = %d, want 1000", stats.TotalGames)
	}
	if len(stats.Moves) != 2 {
		t.Errorf("got %d moves, want 2 (zero-game move dropped)", len(stats.Moves))
	}
	e4 := stats.Moves["e4"]
	if e4.Games != 500 || e4.Wins != 250 || e4.Draws != 150 || e4.Losses != 100 {
		t.Errorf("e4 outcome = %+v", e4)
	}
	if got := e4.ExpectedScore(); got != 0.65 {
		t.Errorf("e4 expected score = %v, want 0.65", got)
	}
}

func TestClient_StatsIdempotent(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, statsBody)
	}))
	defer srv.Close()

	client := testClient(t, srv)
	ctx := context.Background()

	if _, err := client.Stats(ctx, testFEN, 1600, 2200, []string{"blitz", "rapid"}); err != nil {
		t.Fatalf("first Stats: %v", err)
	}
	// Same query, reordered time controls: must be a cache hit.
	if _, err := client.Stats(ctx, testFEN, 1600, 2200, []string{"rapid", "blitz"}); err != nil {
		t.Fatalf("second Stats: %v", err)
	}

	if requests != 1 {
		t.Errorf("external queries = %d, want 1", requests)
	}
	if client.Queries() != 1 {
		t.Errorf("Queries() = %d, want 1", client.Queries())
	}
}

func TestClient_RetriesThenFails(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := testClient(t, srv)
	stats, err := client.Stats(context.Background(), testFEN, 1600, 2200, []string{"blitz"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if stats != nil {
		t.Error("stats should be nil on failure")
	}
	if requests != 3 {
		t.Errorf("attempts = %d, want 3", requests)
	}
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, statsBody)
	}))
	defer srv.Close()

	client := testClient(t, srv)
	stats, err := client.Stats(context.Background(), testFEN, 1600, 2200, []string{"blitz"})
	if err != nil {
		t.Fatalf("Stats should succeed on third attempt: %v", err)
	}
	if stats.TotalGames != 1000 {
		t.Errorf("TotalGames = %d, want 1000", stats.TotalGames)
	}
}

func TestClient_SendsBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, statsBody)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:       srv.URL,
		APIToken:      "secret",
		QueryInterval: time.Millisecond,
		RetryDelay:    time.Millisecond,
		Logger:        zerolog.Nop(),
	}, testCache(t))

	if _, err := client.Stats(context.Background(), testFEN, 1600, 2200, []string{"blitz"}); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer secret")
	}
}

func TestClient_ComprehensiveStats(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch r.URL.Query().Get("ratings") {
		case "2200,2300,2400,2500": // high band
			fmt.Fprint(w, `{"white": 500, "draws": 300, "black": 200,
				"moves": [{"san": "e4", "white": 200, "draws": 120, "black": 80}]}`)
		case "1600,1700,1800,1900,2000,2100": // low band
			fmt.Fprint(w, `{"white": 1000, "draws": 600, "black": 400,
				"moves": [{"san": "e4", "white": 200, "draws": 120, "black": 80},
					{"san": "d4", "white": 50, "draws": 30, "black": 20}]}`)
		default: // full band
			fmt.Fprint(w, `{"white": 1500, "draws": 900, "black": 600,
				"moves": [{"san": "e4", "white": 400, "draws": 240, "black": 160},
					{"san": "d4", "white": 50, "draws": 30, "black": 20}]}`)
		}
	}))
	defer srv.Close()

	client := testClient(t, srv)
	ctx := context.Background()

	stats, err := client.ComprehensiveStats(ctx, testFEN, 1600, 2500, []string{"blitz"})
	if err != nil {
		t.Fatalf("ComprehensiveStats: %v", err)
	}

	if requests != 3 {
		t.Errorf("external queries = %d, want 3 (full, high, low)", requests)
	}
	if stats.TotalGames != 3000 {
		t.Errorf("TotalGames = %d, want 3000", stats.TotalGames)
	}

	// e4: 400/1000 in the high band vs 400/2000 in the low band.
	if got := stats.HighRatingPreference("e4"); !closeTo(got, 0.2) {
		t.Errorf("e4 preference = %v, want 0.2", got)
	}
	// d4 is missing from the high band, so its preference defaults to 0.
	if got := stats.HighRatingPreference("d4"); got != 0 {
		t.Errorf("d4 preference = %v, want 0", got)
	}

	// The composition is cached under its own key: no further queries.
	if _, err := client.ComprehensiveStats(ctx, testFEN, 1600, 2500, []string{"blitz"}); err != nil {
		t.Fatalf("second ComprehensiveStats: %v", err)
	}
	if requests != 3 {
		t.Errorf("external queries after cached call = %d, want 3", requests)
	}
}

func closeTo(got, want float64) bool {
	diff := got - want
	return diff > -1e-9 && diff < 1e-9
}
