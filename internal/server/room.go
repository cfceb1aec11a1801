package server

import (
	"context"
	"sync"
	"time"

	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"go.uber.org/zap"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	force bool
	done  chan bool
}

// Room fans out events for one session. Its goroutine owns the client set.
type Room struct {
	id            string
	session       database.Session
	qs            *QAServer
	joinChan      chan *ClientMessage
	leaveChan     chan *Client
	broadcastChan chan *ServerMessage
	clients       map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *zap.Logger
	// killTimer unloads the room once it has been empty for idleRoomTimeout
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(qs *QAServer, session database.Session) *Room {
	return &Room{
		id:            session.Id,
		session:       session,
		qs:            qs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *Client, 256),
		broadcastChan: make(chan *ServerMessage, 256),
		clients:       make(map[*Client]struct{}),
		log:           qs.log.With(zap.String("room_id", session.Id), zap.String("code", session.Code)),
		exit:          make(chan exitReq, 1),
	}
}

func (r *Room) start() {
	r.log.Debug("starting room")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case msg := <-r.broadcastChan:
			r.broadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			if r.handleRoomExit(e) {
				return
			}
		}
	}
}

func (r *Room) handleRoomTimeout() {
	if r.numClients() > 0 {
		return
	}

	r.log.Debug("room timed out")
	select {
	case r.qs.unloadRoomChan <- unloadRoomRequest{roomId: r.id}:
	default:
		r.log.Warn("unload channel full, retrying later")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// handleRoomExit reports whether the room exited. An unforced exit is
// refused while the room has clients or queued joins.
func (r *Room) handleRoomExit(e exitReq) bool {
	if !e.force && (r.numClients() > 0 || len(r.joinChan) > 0) {
		e.done <- false
		return false
	}

	r.log.Debug("room exiting")
	if r.killTimer != nil {
		r.killTimer.Stop()
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.queueMessage(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Event:       EventRoomClosed,
		})
		c.leftRoom(r)
		delete(r.clients, c)
	}
	r.clientLock.Unlock()

	// joins queued behind the exit are answered so their clients can retry
	for {
		select {
		case join := <-r.joinChan:
			join.client.joinFailed()
			join.client.queueMessage(ErrServiceUnavailable(join.Id))
		default:
			e.done <- true
			return true
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	ctx, cancel := context.WithTimeout(context.Background(), r.qs.storeTimeout)
	defer cancel()

	questions, err := r.qs.svc.Questions.ListBySession(ctx, r.id, false)
	if err != nil {
		r.log.Error("load questions", zap.Error(err), zap.String("conn_id", c.id))
		c.joinFailed()
		c.queueMessage(ErrResponse(join.Id, qa.AsError(err)))
		if r.numClients() == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	if !r.addClient(c) {
		r.log.Debug("client closed before join completed", zap.String("conn_id", c.id))
		if r.numClients() == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	c.queueMessage(NoErrOK(join.Id, EventSnapshot, Snapshot{
		Session:   qa.SessionView(join.session, ""),
		Questions: qa.QuestionViews(questions),
	}))
}

func (r *Room) handleLeave(c *Client) {
	r.removeClient(c)
}

func (r *Room) numClients() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}

func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if !c.joinedRoom(r) {
		return false
	}

	r.clients[c] = struct{}{}
	r.log.Debug("client joined", zap.String("conn_id", c.id), zap.Int("num_clients", len(r.clients)))
	return true
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.leftRoom(r)
	r.log.Debug("client left", zap.String("conn_id", c.id), zap.Int("num_clients", len(r.clients)))

	if len(r.clients) == 0 {
		r.log.Debug("no clients, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for c := range r.clients {
		c.queueMessage(msg)
	}
}
