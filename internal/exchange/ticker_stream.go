package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// tickerStream is a push-based price feed over the Bybit v5 public spot
// websocket. It delivers last-price updates to a single callback, serialized
// on one reader goroutine per stream.
type tickerStream struct {
	url    string
	symbol string
	conn   *websocket.Conn
}

func newTickerStream(url, symbol string) *tickerStream {
	return &tickerStream{url: url, symbol: symbol}
}

// run connects, subscribes to the symbol's ticker topic, and blocks reading
// updates until the context is canceled or the connection fails.
func (ts *tickerStream) run(ctx context.Context, callback TickerCallback) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(ts.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to ticker stream: %w", err)
	}
	ts.conn = conn
	defer conn.Close()

	subscribeMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + ts.symbol},
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return fmt.Errorf("failed to subscribe to ticker stream: %w", err)
	}
	log.Printf("📡 Subscribed to ticker stream for %s", ts.symbol)

	// Close the connection when the context ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go ts.keepAlive(ctx)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ticker stream read error: %w", err)
		}

		price, ok := parseTickerMessage(message)
		if !ok {
			continue
		}
		callback(price)
	}
}

// keepAlive sends the Bybit application-level ping every 20 seconds.
func (ts *tickerStream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ts.conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				log.Printf("⚠️ Ticker stream ping failed: %v", err)
				return
			}
		}
	}
}

// parseTickerMessage extracts the last price from a ticker topic message.
// Non-ticker frames (subscription acks, pongs) are skipped.
func parseTickerMessage(message []byte) (float64, bool) {
	var frame struct {
		Topic string `json:"topic"`
		Data  struct {
			LastPrice string `json:"lastPrice"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &frame); err != nil {
		return 0, false
	}
	if frame.Topic == "" || frame.Data.LastPrice == "" {
		return 0, false
	}

	var price float64
	if _, err := fmt.Sscanf(frame.Data.LastPrice, "%f", &price); err != nil {
		return 0, false
	}
	return price, price > 0
}
