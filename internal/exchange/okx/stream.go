package okx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradectl/internal/kline"
	tmodel "tradectl/internal/model"
	"tradectl/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
)

const (
	pingInterval   = 15 * time.Second
	reconnectDelay = 2 * time.Second
)

// Stream OKX business 频道的K线推送，断线自动重连并恢复订阅
type Stream struct {
	url    string
	dialer *websocket.Dialer
}

func NewStream(url string) *Stream {
	return &Stream{url: url, dialer: websocket.DefaultDialer}
}

// wsMessage 推送消息与事件回执共用
type wsMessage struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}

// Subscribe ctx 取消后关闭连接并关闭通道
func (s *Stream) Subscribe(ctx context.Context, symbol, timeframe string) (<-chan tmodel.Candle, error) {
	tf, err := kline.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	out := make(chan tmodel.Candle, 64)
	go s.run(ctx, symbol, timeframe, tf, out)
	return out, nil
}

func (s *Stream) run(ctx context.Context, symbol, timeframe string, tf time.Duration, out chan<- tmodel.Candle) {
	defer close(out)
	logger.Infof("[stream] candle%s %s connection manager started", timeframe, symbol)

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			logger.Warnf("[stream] connection failed, retrying in %v: %v", reconnectDelay, err)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			continue
		}

		if err := s.serve(ctx, conn, symbol, timeframe, tf, out); err != nil && ctx.Err() == nil {
			logger.Warnf("[stream] lost connection: %v. Restarting reconnect loop...", err)
		}
		if !sleep(ctx, reconnectDelay) {
			return
		}
	}
}

// serve 订阅并阻塞读取直到连接断开或 ctx 取消
func (s *Stream) serve(ctx context.Context, conn *websocket.Conn, symbol, timeframe string, tf time.Duration, out chan<- tmodel.Candle) error {
	var writeMu sync.Mutex
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	sub := map[string]interface{}{
		"op": "subscribe",
		"args": []map[string]string{
			{"channel": "candle" + timeframe, "instId": symbol},
		},
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if err != nil {
					logger.Debugf("[stream] ping failed: %v. Stopping ping loop.", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		candles, err := parseCandles(message, tf)
		if err != nil {
			logger.Warnf("[stream] %v", err)
			continue
		}
		for _, c := range candles {
			select {
			case out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// parseCandles data 数组格式 [ts,o,h,l,c,vol,volCcy,volCcyQuote,confirm]
func parseCandles(message []byte, tf time.Duration) ([]tmodel.Candle, error) {
	if string(message) == "pong" {
		return nil, nil
	}
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch msg.Event {
	case "":
	case "error":
		return nil, fmt.Errorf("okx ws error, code=%s msg=%s", msg.Code, msg.Msg)
	default:
		logger.Debugf("[stream] event %s %s", msg.Event, msg.Arg.Channel)
		return nil, nil
	}

	candles := make([]tmodel.Candle, 0, len(msg.Data))
	for _, row := range msg.Data {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed candle row %v", row)
		}
		open := time.UnixMilli(cast.ToInt64(row[0]))
		c := tmodel.Candle{
			OpenTime:  open,
			CloseTime: open.Add(tf),
			Open:      cast.ToFloat64(row[1]),
			High:      cast.ToFloat64(row[2]),
			Low:       cast.ToFloat64(row[3]),
			Close:     cast.ToFloat64(row[4]),
			Volume:    cast.ToFloat64(row[5]),
		}
		if len(row) >= 9 {
			c.Confirmed = row[8] == "1"
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
