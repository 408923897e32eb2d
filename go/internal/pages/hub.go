package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub manages presentation websocket connections grouped by location.
type Hub struct {
	// Subscribers organized by location
	subscribers map[Location]map[*Subscriber]bool
	// Last update per location, replayed to new subscribers
	latest map[Location]Update
	mu     sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan Update
	mirrors     []Mirror
}

// Subscriber is one presentation connection.
type Subscriber struct {
	ID        string
	Locations []Location
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// The presentation layer is served from the same device.
			return true
		},
	}
}

// NewHub creates a hub. Mirrors get a copy of every update.
func NewHub(config ConnectionConfig, mirrors ...Mirror) *Hub {
	return &Hub{
		subscribers: make(map[Location]map[*Subscriber]bool),
		latest:      make(map[Location]Update),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan Update, 1000),
		mirrors:     mirrors,
	}
}

// Start processes published updates until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("page hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("page hub shutting down")
			return
		case update := <-h.broadcastCh:
			h.handleBroadcast(update)
			h.mirror(ctx, update)
		}
	}
}

// Publish queues an update for location.
func (h *Hub) Publish(location Location, content string) {
	update := Update{
		ID:        uuid.New(),
		Location:  location,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	select {
	case h.broadcastCh <- update:
	default:
		log.Warn().Str("location", string(location)).Msg("broadcast channel full, dropping page update")
	}
}

// Latest returns the last update published for location.
func (h *Hub) Latest(location Location) (Update, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.latest[location]
	return u, ok
}

// UpgradeConnection upgrades an HTTP connection and subscribes it to
// locations.
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request, locations []Location) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	sub := &Subscriber{
		ID:          uuid.New().String(),
		Locations:   locations,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.register(sub)

	go sub.writePump()
	go sub.readPump()

	log.Info().
		Str("subscriber_id", sub.ID).
		Int("locations", len(locations)).
		Msg("page subscriber connected")

	return nil
}

// register adds a subscriber and replays the latest content of each of its
// locations so a reconnecting screen is never blank.
func (h *Hub) register(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, loc := range sub.Locations {
		if h.subscribers[loc] == nil {
			h.subscribers[loc] = make(map[*Subscriber]bool)
		}
		h.subscribers[loc][sub] = true

		if update, ok := h.latest[loc]; ok {
			if data, err := json.Marshal(update); err == nil {
				select {
				case sub.Send <- data:
				default:
				}
			}
		}
	}
}

func (h *Hub) unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := false
	for _, loc := range sub.Locations {
		subs, exists := h.subscribers[loc]
		if !exists {
			continue
		}
		if _, exists := subs[sub]; !exists {
			continue
		}
		delete(subs, sub)
		removed = true
		if len(subs) == 0 {
			delete(h.subscribers, loc)
		}
	}
	if removed {
		close(sub.Send)
		log.Info().Str("subscriber_id", sub.ID).Msg("page subscriber unregistered")
	}
}

func (h *Hub) handleBroadcast(update Update) {
	data, err := json.Marshal(update)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal page update")
		return
	}

	// Sends happen under the lock so unregister cannot close a channel
	// mid-send.
	h.mu.Lock()
	h.latest[update.Location] = update
	var slow []*Subscriber
	delivered := 0
	for sub := range h.subscribers[update.Location] {
		select {
		case sub.Send <- data:
			delivered++
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range slow {
		log.Warn().
			Str("subscriber_id", sub.ID).
			Msg("subscriber send buffer full, closing connection")
		h.unregister(sub)
		sub.Conn.Close()
	}

	log.Debug().
		Str("location", string(update.Location)).
		Int("subscribers", delivered).
		Msg("page update broadcasted")
}

func (h *Hub) mirror(ctx context.Context, update Update) {
	for _, m := range h.mirrors {
		if err := m.Mirror(ctx, update); err != nil {
			log.Warn().Err(err).Str("location", string(update.Location)).Msg("failed to mirror page update")
		}
	}
}

// Stats returns the number of subscribers per location.
func (h *Hub) Stats() map[Location]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[Location]int, len(h.subscribers))
	for loc, subs := range h.subscribers {
		out[loc] = len(subs)
	}
	return out
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(s.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
		s.Hub.unregister(s)
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(s.Hub.config.WriteTimeout))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("subscriber_id", s.ID).Msg("failed to write page update")
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(s.Hub.config.WriteTimeout))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("subscriber_id", s.ID).Msg("failed to send ping")
				return
			}
			s.LastPing = time.Now()
		}
	}
}

// readPump only keeps the connection alive; the presentation layer never
// sends anything meaningful.
func (s *Subscriber) readPump() {
	defer func() {
		s.Hub.unregister(s)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(s.Hub.config.MaxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(s.Hub.config.ReadTimeout))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(s.Hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := s.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("subscriber_id", s.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		s.Conn.SetReadDeadline(time.Now().Add(s.Hub.config.ReadTimeout))
	}
}
