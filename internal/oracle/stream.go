package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second
)

// StreamFeed subscribes to a price push service over websocket and keeps the
// latest round per feed in a FeedBook.
type StreamFeed struct {
	url         string
	book        *FeedBook
	conn        *websocket.Conn
	mu          sync.RWMutex
	writeMu     sync.Mutex
	subs        []string
	ctx         context.Context
	cancel      context.CancelFunc
	isConnected bool
}

func NewStreamFeed(url string, feeds []string) *StreamFeed {
	ctx, cancel := context.WithCancel(context.Background())
	s := &StreamFeed{
		url:    url,
		book:   NewFeedBook(),
		subs:   make([]string, 0, len(feeds)),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, f := range feeds {
		if key := normaliseFeed(f); key != "" {
			s.subs = append(s.subs, key)
		}
	}
	return s
}

// Start launches the connection loop in a background goroutine
func (s *StreamFeed) Start() {
	go s.runLoop()
}

func (s *StreamFeed) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *StreamFeed) Latest(ctx context.Context, feedID string) (Reading, error) {
	if !s.Connected() {
		if r, err := s.book.Latest(ctx, feedID); err == nil {
			// 断线期间仍返回最后一笔，由 Resolver 的 maxAge 判断是否过期
			return r, nil
		}
		return Reading{}, fmt.Errorf("%w: stream disconnected", ErrOracleUnavailable)
	}
	return s.book.Latest(ctx, feedID)
}

func (s *StreamFeed) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// Subscribe adds feeds to the subscription list and updates the connection if active
func (s *StreamFeed) Subscribe(feedIDs []string) {
	s.mu.Lock()
	added := make([]string, 0, len(feedIDs))
	for _, id := range feedIDs {
		key := normaliseFeed(id)
		if key == "" {
			continue
		}
		found := false
		for _, existing := range s.subs {
			if existing == key {
				found = true
				break
			}
		}
		if !found {
			s.subs = append(s.subs, key)
			added = append(added, key)
		}
	}
	connected := s.isConnected
	s.mu.Unlock()

	if len(added) > 0 && connected {
		if err := s.sendSubscribe(added); err != nil {
			logger.Warn("Feed subscribe failed", "feeds", added, "error", err)
		}
	}
}

func (s *StreamFeed) runLoop() {
	delay := ReconnBaseDelay

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn, err := s.connect()
		if err != nil {
			logger.Error("Oracle stream connection failed", "url", s.url, "error", err, "retry_in", delay)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > ReconnMaxDelay {
				delay = ReconnMaxDelay
			}
			continue
		}

		delay = ReconnBaseDelay
		s.mu.Lock()
		s.conn = conn
		s.isConnected = true
		allSubs := append([]string(nil), s.subs...)
		s.mu.Unlock()

		if len(allSubs) > 0 {
			if err := s.sendSubscribe(allSubs); err != nil {
				logger.Error("Failed to resubscribe feeds", "error", err)
				s.markDisconnected()
				continue
			}
		}

		s.readLoop(conn)
		s.markDisconnected()
	}
}

func (s *StreamFeed) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.isConnected = false
}

func (s *StreamFeed) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	// Zombie check: no data or pong within PingPeriod + buffer means the peer is gone.
	readTimeout := PingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go func() {
		ticker := time.NewTicker(PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	return conn, nil
}

// FeedMessage is one price update pushed by the stream.
type FeedMessage struct {
	EventType   string `json:"event_type"` // "price"
	FeedID      string `json:"feed_id"`
	Price       string `json:"price"` // decimal string, e.g. "23.45000000"
	Description string `json:"description,omitempty"`
	Timestamp   int64  `json:"timestamp"` // unix seconds of the round
}

func (s *StreamFeed) readLoop(conn *websocket.Conn) {
	readTimeout := PingPeriod + 10*time.Second

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Error("Oracle stream read error", "error", err)
			}
			return
		}

		var msgs []FeedMessage
		if err := json.Unmarshal(message, &msgs); err != nil {
			var single FeedMessage
			if err2 := json.Unmarshal(message, &single); err2 != nil {
				continue
			}
			msgs = []FeedMessage{single}
		}

		for _, m := range msgs {
			if m.EventType == "price" && m.FeedID != "" {
				s.processPrice(m)
			}
		}
	}
}

func (s *StreamFeed) processPrice(m FeedMessage) {
	ts := time.Unix(m.Timestamp, 0)
	r, err := ParseReading(m.FeedID, m.Price, ts)
	if err != nil {
		logger.Warn("Dropping malformed price update", "feed", m.FeedID, "error", err)
		return
	}
	r.Description = m.Description
	s.book.Set(r)
}

func (s *StreamFeed) sendSubscribe(feedIDs []string) error {
	msg := map[string]interface{}{
		"type":     "subscribe",
		"feed_ids": feedIDs,
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}
