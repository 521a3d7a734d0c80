package controller

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreach/models"
)

const subscriberBuffer = 8

// TimelineHub fans timeline changes out to websocket subscribers of a
// connection.
type TimelineHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan *models.Timeline]struct{}
	logger      *logrus.Entry
}

func NewTimelineHub(logger *logrus.Entry) *TimelineHub {
	return &TimelineHub{
		subscribers: make(map[uint]map[chan *models.Timeline]struct{}),
		logger:      logger,
	}
}

// Subscribe registers for a connection's timeline changes. The returned
// cancel func must be called to unsubscribe.
func (h *TimelineHub) Subscribe(connectionID uint) (<-chan *models.Timeline, func()) {
	ch := make(chan *models.Timeline, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[connectionID] == nil {
		h.subscribers[connectionID] = make(map[chan *models.Timeline]struct{})
	}
	h.subscribers[connectionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[connectionID], ch)
			if len(h.subscribers[connectionID]) == 0 {
				delete(h.subscribers, connectionID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends tl to every subscriber of the connection. Slow subscribers
// miss updates rather than block the publisher.
func (h *TimelineHub) Publish(connectionID uint, tl *models.Timeline) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[connectionID] {
		select {
		case ch <- tl.Clone():
		default:
			h.logger.WithField("connection_id", connectionID).Warn("Dropping timeline update for slow subscriber")
		}
	}
}

// Subscribers returns how many subscribers a connection has
func (h *TimelineHub) Subscribers(connectionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[connectionID])
}

// UpgradeTimelineWS authorizes the websocket upgrade for an owned
// connection.
func UpgradeTimelineWS(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		conn, err := findConnection(db, currentUser(c).ID, c.Params("id"))
		if err != nil {
			return connectionError(c, err)
		}
		c.Locals("connectionID", conn.ID)
		return c.Next()
	}
}

// HandleTimelineWS streams timeline changes for one connection until the
// client goes away.
func (h *TimelineHub) HandleTimelineWS(c *websocket.Conn) {
	defer c.Close()

	connectionID, _ := c.Locals("connectionID").(uint)
	updates, cancel := h.Subscribe(connectionID)
	defer cancel()

	log := h.logger.WithField("connection_id", connectionID)
	log.Debug("Timeline subscriber connected")

	// The client never sends anything meaningful; a read error means it left
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Debug("Timeline subscriber disconnected")
			return
		case tl := <-updates:
			if err := c.WriteJSON(fiber.Map{"timeline": tl}); err != nil {
				log.WithError(err).Warn("Error writing timeline update")
				return
			}
		}
	}
}
