package server

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/go-liveqa/internal/auth"
	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/ratelimit"
	"github.com/npezzotti/go-liveqa/internal/stats"
	"github.com/npezzotti/go-liveqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestQAServer creates a QAServer backed by repo. Metric registration is
// expected on mock stats providers.
func newTestQAServer(t *testing.T, repo database.QARepository, su stats.StatsProvider) *QAServer {
	if m, ok := su.(*stats.MockStatsUpdater); ok {
		m.On("RegisterMetric", mock.Anything).Return(nil).Times(len(stats.Metrics))
	}

	logger := testutil.TestLogger(t)
	svc := qa.NewService(repo, nil, logger)
	qs, err := NewQAServer(logger, svc, ratelimit.NewLimiter(nil), su, time.Second)
	if err != nil {
		t.Fatalf("failed to create test QAServer: %v", err)
	}
	return qs
}

func newTestClient(t *testing.T, qs *QAServer, identity auth.Identity) *Client {
	return NewClient(identity, nil, qs, testutil.TestLogger(t))
}

func createSession(t *testing.T, qs *QAServer) qa.CreatedSession {
	s, err := qs.svc.Sessions.Create(context.Background(), "Presenter", "")
	require.NoError(t, err)
	return s
}

func receive(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message for client")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Errorf("expected no message, got %+v", msg)
	default:
	}
}

func TestNewQAServer(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(len(stats.Metrics))

	logger := testutil.TestLogger(t)
	svc := qa.NewService(database.NewMemoryQARepository(), nil, logger)
	qs, err := NewQAServer(logger, svc, nil, su, time.Second)
	assert.NoError(t, err, "expected no error creating QAServer")
	assert.NotNil(t, qs, "expected QAServer to be non-nil")
	assert.Equal(t, svc, qs.svc, "expected service to be set")
	assert.Equal(t, time.Second, qs.storeTimeout)
	assert.NotNil(t, qs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, qs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, qs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, qs.clients, "expected clients map to be initialized")
}

func TestQAServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-qs.stop:
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		assert.NoError(t, qs.Shutdown(ctx))
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		go func() {
			select {
			case <-qs.stop:
				// never signal done
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := qs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("stops connected clients", func(t *testing.T) {
		qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})
		go qs.Run()

		c := newTestClient(t, qs, auth.Anonymous())
		qs.RegisterClient(c)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, qs.Shutdown(ctx))

		select {
		case <-c.stop:
		default:
			t.Error("expected client stop channel to be closed")
		}
	})
}

func TestQAServerShutdown_Integration(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.NumActiveRooms).Once()
	su.On("Decr", stats.NumActiveRooms).Once()
	defer su.AssertExpectations(t)

	qs := newTestQAServer(t, database.NewMemoryQARepository(), su)
	go qs.Run()

	room := newRoom(qs, database.Session{Id: "room-1", Code: "AbC123"})
	qs.addRoom(room.id, room)
	go room.start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, qs.Shutdown(ctx))

	_, ok := qs.getRoom(room.id)
	assert.False(t, ok, "expected room to be unloaded after shutdown")
	assert.Equal(t, 0, qs.numRooms)
}

func TestQAServer_addClient_removeClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.NumActiveClients).Once()
	su.On("Decr", stats.NumActiveClients).Once()
	defer su.AssertExpectations(t)

	qs := newTestQAServer(t, database.NewMemoryQARepository(), su)
	c := newTestClient(t, qs, auth.Anonymous())

	qs.addClient(c)
	assert.Contains(t, qs.clients, c)

	qs.removeClient(c)
	assert.NotContains(t, qs.clients, c)

	// removing twice does not decrement again
	qs.removeClient(c)
}

func TestQAServer_handleJoinRoom(t *testing.T) {
	qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})
	session := createSession(t, qs)

	_, err := qs.svc.Questions.Create(context.Background(), session.Id, "ann", "first?", nil)
	require.NoError(t, err)

	join := func(c *Client, id int) {
		require.True(t, c.beginJoin())
		qs.handleJoinRoom(&ClientMessage{
			BaseMessage: BaseMessage{Id: id},
			Event:       EventJoinRoom,
			Join:        &JoinRoom{Code: session.Code},
			client:      c,
			session:     session.Session,
		})
	}

	c1 := newTestClient(t, qs, auth.Anonymous())
	join(c1, 1)

	msg := receive(t, c1)
	assert.Equal(t, 1, msg.Id)
	assert.Equal(t, EventSnapshot, msg.Event)
	require.NotNil(t, msg.Response)
	assert.Equal(t, 200, msg.Response.ResponseCode)
	snap, ok := msg.Response.Data.(Snapshot)
	require.True(t, ok, "expected snapshot data")
	assert.Equal(t, session.Id, snap.Session.Id)
	assert.Empty(t, snap.Session.PresenterToken)
	assert.Len(t, snap.Questions, 1)

	room, ok := qs.getRoom(session.Id)
	require.True(t, ok, "expected room to be loaded")
	assert.Equal(t, room, c1.getRoom())
	assert.Equal(t, 1, qs.numRooms)

	// a second client reuses the loaded room
	c2 := newTestClient(t, qs, auth.Anonymous())
	join(c2, 2)
	receive(t, c2)
	assert.Equal(t, room, c2.getRoom())
	assert.Equal(t, 1, qs.numRooms)
	assert.Equal(t, 2, room.numClients())

	qs.unloadRoom(session.Id, true)
	assert.Nil(t, c1.getRoom())
}

func TestQAServer_handleJoinRoom_JoinChanFull(t *testing.T) {
	qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})

	room := newRoom(qs, database.Session{Id: "room-1"})
	room.joinChan = make(chan *ClientMessage)
	qs.addRoom(room.id, room)

	c := newTestClient(t, qs, auth.Anonymous())
	require.True(t, c.beginJoin())
	qs.handleJoinRoom(&ClientMessage{
		BaseMessage: BaseMessage{Id: 4},
		client:      c,
		session:     room.session,
	})

	msg := receive(t, c)
	assert.Equal(t, 4, msg.Id)
	assert.Equal(t, 503, msg.Response.ResponseCode)
	assert.True(t, c.beginJoin(), "expected client to be able to retry the join")
}

func TestQAServer_Publish(t *testing.T) {
	qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})

	t.Run("no room loaded", func(t *testing.T) {
		assert.NotPanics(t, func() {
			qs.Publish("missing", &ServerMessage{Event: EventQuestionCreated})
		})
	})

	t.Run("room loaded", func(t *testing.T) {
		room := newRoom(qs, database.Session{Id: "room-1"})
		qs.addRoom(room.id, room)

		qs.Publish(room.id, &ServerMessage{Event: EventQuestionCreated})
		require.Len(t, room.broadcastChan, 1)
		msg := <-room.broadcastChan
		assert.Equal(t, EventQuestionCreated, msg.Event)
	})

	t.Run("broadcast channel full", func(t *testing.T) {
		room := newRoom(qs, database.Session{Id: "room-2"})
		room.broadcastChan = make(chan *ServerMessage, 1)
		qs.addRoom(room.id, room)

		qs.Publish(room.id, &ServerMessage{Event: EventQuestionCreated})
		qs.Publish(room.id, &ServerMessage{Event: EventQuestionUpdated})
		assert.Len(t, room.broadcastChan, 1)
	})
}

func TestQAServer_unloadRoom(t *testing.T) {
	t.Run("refuses while clients are present", func(t *testing.T) {
		qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})
		room := newRoom(qs, database.Session{Id: "room-1"})
		qs.addRoom(room.id, room)
		go room.start()

		c := newTestClient(t, qs, auth.Anonymous())
		room.clientLock.Lock()
		room.clients[c] = struct{}{}
		room.clientLock.Unlock()

		qs.unloadRoom(room.id, false)
		_, ok := qs.getRoom(room.id)
		assert.True(t, ok, "expected room to stay loaded")

		qs.unloadRoom(room.id, true)
		_, ok = qs.getRoom(room.id)
		assert.False(t, ok, "expected forced unload to remove the room")

		msg := receive(t, c)
		assert.Equal(t, EventRoomClosed, msg.Event)
	})

	t.Run("unknown room", func(t *testing.T) {
		qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})
		assert.NotPanics(t, func() { qs.unloadRoom("missing", false) })
	})

	t.Run("idle room unloaded through Run", func(t *testing.T) {
		qs := newTestQAServer(t, database.NewMemoryQARepository(), stats.NopStats{})
		go qs.Run()
		defer qs.Shutdown(context.Background())

		room := newRoom(qs, database.Session{Id: "room-1"})
		qs.addRoom(room.id, room)
		go room.start()

		qs.unloadRoomChan <- unloadRoomRequest{roomId: room.id}
		assert.Eventually(t, func() bool {
			_, ok := qs.getRoom(room.id)
			return !ok
		}, time.Second, 10*time.Millisecond)
	})
}
