package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/basisops/fundmon/internal/domain"
)

// MarkPriceHandler is called for each mark-price update.
type MarkPriceHandler func(ctx context.Context, symbol string, price float64, ts time.Time)

// MarkPriceFeed subscribes to the futures mark-price stream for the given
// symbols and invokes the handler on each update. It reconnects with
// backoff on disconnect. Live mode uses it to keep the market data cache
// warm between REST polls.
type MarkPriceFeed struct {
	wsHost  string
	symbols []string
	onPrice MarkPriceHandler
	logger  *slog.Logger
}

// NewMarkPriceFeed creates a feed for the given symbols (e.g. "BTCUSDT").
func NewMarkPriceFeed(wsHost string, symbols []string, onPrice MarkPriceHandler, logger *slog.Logger) *MarkPriceFeed {
	return &MarkPriceFeed{
		wsHost:  wsHost,
		symbols: symbols,
		onPrice: onPrice,
		logger:  logger.With(slog.String("component", "binance_mark_price_feed")),
	}
}

// Run connects and processes updates until ctx is cancelled.
func (f *MarkPriceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("mark price stream disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *MarkPriceFeed) runConnection(ctx context.Context) error {
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	u := f.wsHost + "/stream?streams=" + strings.Join(streams, "/")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance: dial %s: %w", u, err)
	}
	defer conn.Close()

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance: read: %w", domain.ErrWSDisconnect)
		}

		var frame struct {
			Data struct {
				Symbol    string `json:"s"`
				MarkPrice string `json:"p"`
				EventTime int64  `json:"E"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil {
			f.logger.Warn("unparseable frame", slog.String("error", err.Error()))
			continue
		}
		if frame.Data.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(frame.Data.MarkPrice, 64)
		if err != nil {
			continue
		}
		f.onPrice(ctx, frame.Data.Symbol, price, time.UnixMilli(frame.Data.EventTime).UTC())
	}
}
