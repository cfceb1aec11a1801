package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/ratelimit"
	"github.com/npezzotti/go-liveqa/internal/stats"
	"go.uber.org/zap"
)

type unloadRoomRequest struct {
	roomId string
}

type stopRequest struct {
	done chan struct{}
}

// QAServer owns the room registry. Joins, unloads and shutdown arrive on
// channels and are handled by the Run goroutine, which is the only writer
// of roomsMap.
type QAServer struct {
	log            *zap.Logger
	svc            *qa.Service
	limiter        *ratelimit.Limiter
	stats          stats.StatsProvider
	storeTimeout   time.Duration
	joinChan       chan *ClientMessage
	unloadRoomChan chan unloadRoomRequest
	stop           chan stopRequest
	roomsMap       sync.Map
	numRooms       int
	clients        map[*Client]struct{}
	clientsLock    sync.RWMutex
}

func NewQAServer(logger *zap.Logger, svc *qa.Service, limiter *ratelimit.Limiter, su stats.StatsProvider, storeTimeout time.Duration) (*QAServer, error) {
	for _, m := range stats.Metrics {
		su.RegisterMetric(m)
	}

	return &QAServer{
		log:            logger,
		svc:            svc,
		limiter:        limiter,
		stats:          su,
		storeTimeout:   storeTimeout,
		joinChan:       make(chan *ClientMessage, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		stop:           make(chan stopRequest),
		clients:        make(map[*Client]struct{}),
	}, nil
}

func (qs *QAServer) Run() {
	for {
		select {
		case joinMsg := <-qs.joinChan:
			qs.handleJoinRoom(joinMsg)
		case req := <-qs.unloadRoomChan:
			qs.unloadRoom(req.roomId, false)
		case req := <-qs.stop:
			qs.log.Info("shutting down rooms")
			qs.unloadAllRooms()
			close(req.done)
			return
		}
	}
}

func (qs *QAServer) handleJoinRoom(msg *ClientMessage) {
	roomId := msg.session.Id
	if room, ok := qs.getRoom(roomId); ok {
		select {
		case room.joinChan <- msg:
		default:
			qs.log.Warn("join channel full", zap.String("room_id", roomId))
			msg.client.joinFailed()
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		}
		return
	}

	room := newRoom(qs, msg.session)
	qs.addRoom(roomId, room)
	go room.start()

	room.joinChan <- msg
}

// Publish delivers msg to every connection in the session's room. Sessions
// without a loaded room have no subscribers and the message is dropped.
func (qs *QAServer) Publish(sessionId string, msg *ServerMessage) {
	room, ok := qs.getRoom(sessionId)
	if !ok {
		return
	}

	select {
	case room.broadcastChan <- msg:
	default:
		qs.log.Warn("broadcast channel full, dropping message",
			zap.String("room_id", sessionId),
			zap.String("event", msg.Event),
		)
	}
}

func (qs *QAServer) RegisterClient(c *Client) {
	qs.addClient(c)
}

func (qs *QAServer) DeRegisterClient(c *Client) {
	qs.removeClient(c)
}

func (qs *QAServer) addClient(c *Client) {
	qs.clientsLock.Lock()
	defer qs.clientsLock.Unlock()

	qs.clients[c] = struct{}{}
	qs.stats.Incr(stats.NumActiveClients)
}

func (qs *QAServer) removeClient(c *Client) {
	qs.clientsLock.Lock()
	defer qs.clientsLock.Unlock()

	if _, ok := qs.clients[c]; !ok {
		return
	}

	delete(qs.clients, c)
	qs.stats.Decr(stats.NumActiveClients)
}

func (qs *QAServer) addRoom(id string, r *Room) {
	qs.roomsMap.Store(id, r)
	qs.numRooms++
	qs.stats.Incr(stats.NumActiveRooms)
}

func (qs *QAServer) getRoom(id string) (*Room, bool) {
	r, ok := qs.roomsMap.Load(id)
	if !ok {
		return nil, false
	}

	return r.(*Room), true
}

func (qs *QAServer) removeRoom(id string) {
	if _, ok := qs.roomsMap.LoadAndDelete(id); ok {
		qs.numRooms--
		qs.stats.Decr(stats.NumActiveRooms)
	}
}

// unloadRoom asks the room to exit and removes it once it has. Without
// force a room that gained clients or pending joins since it timed out
// stays loaded.
func (qs *QAServer) unloadRoom(roomId string, force bool) {
	room, ok := qs.getRoom(roomId)
	if !ok {
		return
	}

	done := make(chan bool, 1)
	room.exit <- exitReq{force: force, done: done}
	if !<-done {
		qs.log.Debug("room became active, keeping it loaded", zap.String("room_id", roomId))
		return
	}

	qs.removeRoom(roomId)
	qs.log.Info("room unloaded", zap.String("room_id", roomId), zap.Int("num_rooms", qs.numRooms))
}

func (qs *QAServer) unloadAllRooms() {
	var ids []string
	qs.roomsMap.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})

	for _, id := range ids {
		qs.unloadRoom(id, true)
	}
}

// Shutdown closes every client connection and unloads all rooms. The Run
// goroutine exits once it returns.
func (qs *QAServer) Shutdown(ctx context.Context) error {
	qs.log.Info("received shutdown signal")

	qs.clientsLock.RLock()
	for c := range qs.clients {
		c.stopClient()
	}
	qs.clientsLock.RUnlock()

	req := stopRequest{done: make(chan struct{})}
	select {
	case qs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
