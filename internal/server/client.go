package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-liveqa/internal/auth"
	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/ratelimit"
	"github.com/npezzotti/go-liveqa/internal/stats"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

type clientState int

const (
	stateConnected clientState = iota
	stateJoining
	stateJoined
	stateClosed
)

// Client is one websocket connection. It joins at most one room for its
// lifetime and its identity never changes after the handshake.
type Client struct {
	id        string
	conn      *websocket.Conn
	qs        *QAServer
	log       *zap.Logger
	identity  auth.Identity
	send      chan *ServerMessage
	state     clientState
	room      *Room
	roomLock  sync.RWMutex
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func newClientId() string {
	id, err := shortid.Generate()
	if err != nil {
		return uuid.NewString()
	}

	return id
}

func NewClient(identity auth.Identity, conn *websocket.Conn, qs *QAServer, l *zap.Logger) *Client {
	id := newClientId()
	return &Client{
		id:       id,
		conn:     conn,
		qs:       qs,
		log:      l.With(zap.String("conn_id", id), zap.Stringer("identity", identity)),
		identity: identity,
		send:     make(chan *ServerMessage, 256),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error("failed to serialize message", zap.Error(err))
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("ws read", zap.Error(err))
			}
			break
		}

		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	msg, err := decodeClientMessage(raw)
	if err != nil {
		var id int
		if msg != nil {
			id = msg.Id
		}
		c.log.Debug("rejected message", zap.Error(err))
		c.queueMessage(ErrResponse(id, qa.AsError(err)))
		return
	}

	msg.client = c
	msg.Timestamp = Now()

	switch {
	case msg.Join != nil:
		c.joinRoom(msg)
	case msg.Question != nil:
		c.submitQuestion(msg)
	case msg.Vote != nil:
		c.submitVote(msg)
	case msg.Answer != nil:
		c.markAnswered(msg)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn("write message", zap.Error(err))
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.closeOnce.Do(func() {
		c.qs.DeRegisterClient(c)
		c.leaveRoom(c.markClosed())
		if c.qs.limiter != nil {
			c.qs.limiter.Release(c.id)
		}
		c.stopClient()
	})
}

func (c *Client) leaveRoom(r *Room) {
	if r == nil {
		return
	}

	select {
	case r.leaveChan <- c:
	case <-time.After(writeWait):
		c.log.Warn("timed out leaving room", zap.String("room_id", r.id))
	}
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()

	return c.room
}

// beginJoin moves a connected client to joining. It fails if the client
// already joined or has a join in flight.
func (c *Client) beginJoin() bool {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.state != stateConnected {
		return false
	}

	c.state = stateJoining
	return true
}

func (c *Client) joinFailed() {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.state == stateJoining {
		c.state = stateConnected
	}
}

// joinedRoom attaches the client to r. It fails once the client is closed
// so a join that completes after disconnect leaves no member behind.
func (c *Client) joinedRoom(r *Room) bool {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.state == stateClosed {
		return false
	}

	c.room = r
	c.state = stateJoined
	return true
}

// markClosed moves the client to closed and returns the room it must leave.
func (c *Client) markClosed() *Room {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	c.state = stateClosed
	return c.room
}

// leftRoom detaches the client from r. A client never rejoins, so the state
// stays joined.
func (c *Client) leftRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room == r {
		c.room = nil
	}
}

func (c *Client) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.qs.storeTimeout)
}

// replyError sends err to this connection only. Internal errors are logged
// with the operation and ids involved.
func (c *Client) replyError(id int, op string, err error, fields ...zap.Field) {
	qaErr := qa.AsError(err)
	if qaErr.Code == qa.CodeInternal {
		c.log.Error(op+" failed", append(fields, zap.Error(err))...)
	}

	c.queueMessage(ErrResponse(id, qaErr))
}

func (c *Client) consume(bucket ratelimit.Bucket) error {
	if c.qs.limiter == nil {
		return nil
	}

	if err := c.qs.limiter.Consume(c.id, bucket); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			c.qs.stats.Incr(stats.RateLimited)
			return qa.RateLimitedError()
		}
		return err
	}

	return nil
}

func (c *Client) joinRoom(msg *ClientMessage) {
	if !c.beginJoin() {
		c.queueMessage(ErrResponse(msg.Id, qa.ValidationError("connection has already joined a room")))
		return
	}

	ctx, cancel := c.storeContext()
	defer cancel()

	session, err := c.qs.svc.Sessions.GetByCode(ctx, msg.Join.Code)
	if err != nil {
		c.joinFailed()
		c.replyError(msg.Id, "join room", err, zap.String("code", msg.Join.Code))
		return
	}

	msg.session = session
	select {
	case c.qs.joinChan <- msg:
	default:
		c.log.Warn("joinChan full")
		c.joinFailed()
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// joinedRoomFor returns the joined room or replies with an error.
func (c *Client) joinedRoomFor(msg *ClientMessage) *Room {
	r := c.getRoom()
	if r == nil {
		c.queueMessage(ErrResponse(msg.Id, qa.ValidationError("join a room first")))
	}

	return r
}

func (c *Client) submitQuestion(msg *ClientMessage) {
	r := c.joinedRoomFor(msg)
	if r == nil {
		return
	}

	p := msg.Question
	if p.SessionId != r.id {
		c.queueMessage(ErrResponse(msg.Id, qa.ValidationError("sessionId does not match the joined room")))
		return
	}

	if err := c.consume(ratelimit.BucketQuestion); err != nil {
		c.replyError(msg.Id, "submit question", err)
		return
	}

	ctx, cancel := c.storeContext()
	defer cancel()

	q, err := c.qs.svc.Questions.Create(ctx, p.SessionId, p.AuthorName, p.Text, qa.MediaFromView(p.Media))
	if err != nil {
		c.replyError(msg.Id, "submit question", err, zap.String("session_id", p.SessionId))
		return
	}

	c.qs.stats.Incr(stats.QuestionsCreated)
	c.queueMessage(NoErrAccepted(msg.Id, EventSubmitQuestion))
	c.qs.Publish(q.SessionId, QuestionCreated(qa.QuestionView(q)))
}

func (c *Client) submitVote(msg *ClientMessage) {
	r := c.joinedRoomFor(msg)
	if r == nil {
		return
	}

	if err := c.consume(ratelimit.BucketVote); err != nil {
		c.replyError(msg.Id, "submit vote", err)
		return
	}

	p := msg.Vote
	ctx, cancel := c.storeContext()
	defer cancel()

	q, err := c.qs.svc.Questions.Get(ctx, p.QuestionId)
	if err != nil {
		c.replyError(msg.Id, "submit vote", err, zap.String("question_id", p.QuestionId))
		return
	}
	if q.SessionId != r.id {
		c.queueMessage(ErrResponse(msg.Id, qa.NotFoundError("question")))
		return
	}

	q, err = c.qs.svc.Ledger.Cast(ctx, p.QuestionId, p.VoterName, database.VoteType(p.Type))
	if err != nil {
		c.replyError(msg.Id, "submit vote", err, zap.String("question_id", p.QuestionId))
		return
	}

	c.qs.stats.Incr(stats.VotesCast)
	c.queueMessage(NoErrAccepted(msg.Id, EventSubmitVote))
	c.qs.Publish(q.SessionId, QuestionUpdated(qa.QuestionView(q)))
}

func (c *Client) markAnswered(msg *ClientMessage) {
	p := msg.Answer
	if !c.identity.CanModerate(p.SessionId) {
		c.queueMessage(ErrResponse(msg.Id, qa.UnauthorizedError()))
		return
	}

	if c.joinedRoomFor(msg) == nil {
		return
	}

	ctx, cancel := c.storeContext()
	defer cancel()

	q, err := c.qs.svc.Questions.Get(ctx, p.QuestionId)
	if err != nil {
		c.replyError(msg.Id, "mark answered", err, zap.String("question_id", p.QuestionId))
		return
	}
	if q.SessionId != p.SessionId {
		c.queueMessage(ErrResponse(msg.Id, qa.NotFoundError("question")))
		return
	}

	q, err = c.qs.svc.Questions.MarkAnswered(ctx, p.QuestionId)
	if err != nil {
		c.replyError(msg.Id, "mark answered", err, zap.String("question_id", p.QuestionId))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id, EventMarkAnswered))
	c.qs.Publish(q.SessionId, QuestionUpdated(qa.QuestionView(q)))
}
