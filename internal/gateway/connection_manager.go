package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ViewerSessions is what the gateway needs from the auction engine: it
// reports joins on upgrade and leaves on connection loss, supplying the
// connection id so the engine's reverse index stays clean.
type ViewerSessions interface {
	JoinViewer(ctx context.Context, connID string, auctionID uuid.UUID, viewerID string) int
	LeaveViewer(ctx context.Context, connID string)
}

// ConnectionManager owns all live viewer websocket connections, pooled
// per auction.
type ConnectionManager struct {
	viewerSessions ViewerSessions

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Connection]bool
	byID  map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection is one viewer's websocket.
type Connection struct {
	ID        string
	ViewerID  string
	AuctionID uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	auctionID uuid.UUID
	data      []byte
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a websocket connection manager.
func NewConnectionManager(viewerSessions ViewerSessions, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		viewerSessions: viewerSessions,
		rooms:          make(map[uuid.UUID]map[*Connection]bool),
		byID:           make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a viewer websocket and
// registers the viewer with the auction engine. viewerID is assumed to
// be authenticated by the caller.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, viewerID string, auctionID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ViewerID:    viewerID,
		AuctionID:   auctionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.register(connection)
	cm.viewerSessions.JoinViewer(r.Context(), connection.ID, auctionID, viewerID)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("viewer_id", viewerID).
		Str("auction_id", auctionID.String()).
		Msg("viewer websocket established")

	return nil
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[conn.AuctionID] == nil {
		cm.rooms[conn.AuctionID] = make(map[*Connection]bool)
	}
	cm.rooms[conn.AuctionID][conn] = true
	cm.byID[conn.ID] = conn
}

// unregister removes a connection and tells the engine the viewer left.
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.rooms[conn.AuctionID]
	if exists {
		if _, open := connections[conn]; open {
			delete(connections, conn)
			delete(cm.byID, conn.ID)
			close(conn.Send)
			if len(connections) == 0 {
				delete(cm.rooms, conn.AuctionID)
			}
		} else {
			exists = false
		}
	}
	cm.mu.Unlock()

	if exists {
		cm.viewerSessions.LeaveViewer(context.Background(), conn.ID)
		log.Info().
			Str("connection_id", conn.ID).
			Str("viewer_id", conn.ViewerID).
			Str("auction_id", conn.AuctionID.String()).
			Msg("viewer websocket closed")
	}
}

// BroadcastToAuction enqueues raw event bytes for every viewer of an
// auction. Never blocks the caller; a full queue drops the message.
func (cm *ConnectionManager) BroadcastToAuction(auctionID uuid.UUID, data []byte) {
	select {
	case cm.broadcastCh <- broadcastMessage{auctionID: auctionID, data: data}:
	default:
		log.Warn().Str("auction_id", auctionID.String()).Msg("broadcast channel full, dropping message")
	}
}

// CloseConnections force-closes the listed connection ids, used when a
// stopping auction evicts its viewers.
func (cm *ConnectionManager) CloseConnections(connIDs []string) {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(connIDs))
	for _, id := range connIDs {
		if conn, ok := cm.byID[id]; ok {
			conns = append(conns, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregister(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.rooms[message.auctionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- message.data:
		default:
			// Slow or dead viewer; evict rather than stall the room.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("viewer_id", conn.ViewerID).
				Msg("connection send buffer full, closing connection")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// Stats returns active connection counts per auction.
func (cm *ConnectionManager) Stats() (total int, perAuction map[string]int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	perAuction = make(map[string]int)
	for auctionID, connections := range cm.rooms {
		perAuction[auctionID.String()] = len(connections)
		total += len(connections)
	}
	return total, perAuction
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write to viewer websocket")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected viewer websocket close")
			}
			return
		}
		// Viewers are read-only; bids and commands arrive over HTTP.
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
