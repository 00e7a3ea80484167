// internal/websocket/hub.go
package websocket

import (
	"context"
	"fmt"
	"sync"

	wstypes "qrloop-service/internal/domain/websocket"
	"qrloop-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// MessageHandler answers client requests for the event types it claims.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

// Hub fans campaign events out to the dashboard connections of each tool owner.
type Hub struct {
	// Registered clients by identity ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	// Written only before Run starts.
	handlers map[wstypes.EventType]MessageHandler
	verifier *jwt.Verifier
	logger   *zap.Logger
}

type BroadcastMessage struct {
	IdentityIDs []int64
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(verifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		handlers:   make(map[wstypes.EventType]MessageHandler),
		verifier:   verifier,
		logger:     logger,
	}
}

// AuthenticateClient validates the access token presented on upgrade
func (h *Hub) AuthenticateClient(token string) (*ClientAuth, error) {
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &ClientAuth{
		IdentityID: claims.IdentityID,
		SessionID:  claims.ID,
		Admin:      claims.IsAdmin(),
	}, nil
}

// RegisterHandler claims the handler's event types. A later registration for
// the same event type replaces the earlier one.
func (h *Hub) RegisterHandler(handler MessageHandler) {
	for _, eventType := range handler.SupportedEvents() {
		if _, taken := h.handlers[eventType]; taken {
			h.logger.Warn("replacing websocket handler", zap.String("event", string(eventType)))
		}
		h.handlers[eventType] = handler
	}
}

// HandleClientMessage routes a client request to its registered handler.
// It reports false when no handler owns the event type.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlers[msg.Type]
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

// Attach hands an upgraded connection to the hub. It reports false once the
// hub has stopped, in which case the caller owns closing the client.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// detach is called by a client whose connection ended.
func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.identityID] == nil {
		h.clients[client.identityID] = make(map[*Client]bool)
	}
	h.clients[client.identityID][client] = true

	h.logger.Info("websocket client connected",
		zap.Int64("identity_id", client.identityID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"identity_id": client.identityID,
		"channels":    []wstypes.ChannelType{wstypes.ChannelScans, wstypes.ChannelRewards},
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.identityID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.identityID)
			}

			h.logger.Info("websocket client disconnected",
				zap.Int64("identity_id", client.identityID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, identityID := range msg.IdentityIDs {
		for client := range h.clients[identityID] {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}
}

// PublishScan pushes a validation outcome to the tool owner. Rewards also go
// out on the rewards channel. Events are dropped when the hub is saturated.
func (h *Hub) PublishScan(ownerID int64, event *wstypes.ScanEventData) {
	h.enqueue(&BroadcastMessage{
		IdentityIDs: []int64{ownerID},
		Channel:     wstypes.ChannelScans,
		Message:     wstypes.NewMessage(wstypes.EventTypeScan, event),
	})

	if event.IsReward {
		h.enqueue(&BroadcastMessage{
			IdentityIDs: []int64{ownerID},
			Channel:     wstypes.ChannelRewards,
			Message:     wstypes.NewMessage(wstypes.EventTypeReward, event),
		})
	}
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("dropping websocket event",
			zap.String("type", string(msg.Message.Type)),
			zap.Error(ErrHubBusy),
		)
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
