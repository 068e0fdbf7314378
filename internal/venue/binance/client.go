// Package binance implements the CEX side of the venue connectivity layer:
// spot prices, perp funding rates, and account balances from the Binance
// REST API, plus a mark-price WebSocket feed for live mode.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// ClientConfig holds REST endpoints and API credentials. Credentials are
// only needed for balance reads; market data endpoints are public.
type ClientConfig struct {
	RESTHost    string
	FuturesHost string
	APIKey      string
	APISecret   string
	// ShareClass is the quote currency symbols are priced in (e.g. USDT).
	ShareClass string
	// Venue is the identifier balances are keyed under.
	Venue domain.Venue
}

// Client is a minimal Binance REST client implementing the market data
// source and balance fetcher boundaries.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter domain.RateLimiter
}

// NewClient creates a Client. limiter may be nil to disable request
// throttling.
func NewClient(cfg ClientConfig, limiter domain.RateLimiter) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: limiter,
	}
}

// Venue implements domain.BalanceFetcher.
func (c *Client) Venue() domain.Venue { return c.cfg.Venue }

// Categories implements domain.BalanceFetcher.
func (c *Client) Categories() []domain.VenueCategory {
	return []domain.VenueCategory{domain.CategoryCEXSpot, domain.CategoryCEXDerivatives}
}

// SpotPrices returns share-class prices for the given assets using the
// public ticker endpoint.
func (c *Client) SpotPrices(ctx context.Context, assets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(assets))
	for _, asset := range assets {
		if asset == c.cfg.ShareClass {
			out[asset] = 1
			continue
		}
		var resp struct {
			Price string `json:"price"`
		}
		q := url.Values{"symbol": {asset + c.cfg.ShareClass}}
		if err := c.get(ctx, c.cfg.RESTHost, "/api/v3/ticker/price", q, false, &resp); err != nil {
			return nil, fmt.Errorf("binance: spot price %s: %w", asset, err)
		}
		p, err := strconv.ParseFloat(resp.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("binance: parse price %s: %w", asset, err)
		}
		out[asset] = p
	}
	return out, nil
}

// FundingRates returns the last funding rate per "venue:symbol" key for
// the symbols belonging to this venue; foreign keys are ignored.
func (c *Client) FundingRates(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := map[string]float64{}
	prefix := string(c.cfg.Venue) + ":"
	for _, key := range symbols {
		sym, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		var resp struct {
			LastFundingRate string `json:"lastFundingRate"`
		}
		q := url.Values{"symbol": {sym}}
		if err := c.get(ctx, c.cfg.FuturesHost, "/fapi/v1/premiumIndex", q, false, &resp); err != nil {
			return nil, fmt.Errorf("binance: funding %s: %w", sym, err)
		}
		rate, err := strconv.ParseFloat(resp.LastFundingRate, 64)
		if err != nil {
			return nil, fmt.Errorf("binance: parse funding %s: %w", sym, err)
		}
		out[key] = rate
	}
	return out, nil
}

// FetchBalances implements domain.BalanceFetcher: spot account balances
// plus open perp positions, both under this client's venue identifier.
func (c *Client) FetchBalances(ctx context.Context, _ time.Time) ([]domain.VenueBalance, error) {
	var balances []domain.VenueBalance

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := c.get(ctx, c.cfg.RESTHost, "/api/v3/account", url.Values{}, true, &account); err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free+locked == 0 {
			continue
		}
		balances = append(balances, domain.VenueBalance{
			Venue:    c.cfg.Venue,
			Category: domain.CategoryCEXSpot,
			Asset:    b.Asset,
			Amount:   free + locked,
		})
	}

	var positions []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
		EntryPrice  string `json:"entryPrice"`
	}
	if err := c.get(ctx, c.cfg.FuturesHost, "/fapi/v2/positionRisk", url.Values{}, true, &positions); err != nil {
		return nil, fmt.Errorf("binance: positions: %w", err)
	}
	for _, p := range positions {
		size, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		balances = append(balances, domain.VenueBalance{
			Venue:      c.cfg.Venue,
			Category:   domain.CategoryCEXDerivatives,
			Asset:      p.Symbol,
			Amount:     size,
			EntryPrice: entry,
		})
	}

	return balances, nil
}

// get performs one GET request, HMAC-signing the query when signed is set.
func (c *Client) get(ctx context.Context, host, path string, q url.Values, signed bool, dst any) error {
	if c.limiter != nil {
		// Binance weighs requests per IP per minute; a coarse shared
		// budget keeps concurrent monitors under the venue limit.
		if err := c.limiter.Wait(ctx, "binance:"+string(c.cfg.Venue), 1100, time.Minute); err != nil {
			return fmt.Errorf("binance: rate limit: %w", err)
		}
	}
	if signed {
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
		mac.Write([]byte(q.Encode()))
		q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
