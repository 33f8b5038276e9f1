package connection_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omochice/socketchat/internal/connection"
	"github.com/omochice/socketchat/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEndpoint = "ws://localhost:4000"
	waitFor      = time.Second
	tick         = 5 * time.Millisecond
)

func nextEvent(t *testing.T, c *connection.Connection) connection.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for event")
		return connection.Event{}
	}
}

func openConnected(t *testing.T) (*connection.Connection, *transporttest.Dialer) {
	t.Helper()
	dialer := transporttest.NewDialer()
	c := connection.NewManager(dialer).Open(testEndpoint)
	t.Cleanup(c.Close)

	ev := nextEvent(t, c)
	require.Equal(t, connection.Event{Kind: connection.EventState, State: connection.StateConnected}, ev)
	require.Equal(t, connection.StateConnected, c.State())
	return c, dialer
}

func TestManager_Open_StartsConnecting(t *testing.T) {
	dialer := transporttest.NewDialer()
	dialer.Hold()
	defer dialer.Release()

	c := connection.NewManager(dialer).Open(testEndpoint)
	defer c.Close()

	assert.Equal(t, connection.StateConnecting, c.State())
	assert.Equal(t, testEndpoint, c.Endpoint())
}

func TestConnection_ConnectsAndReceives(t *testing.T) {
	c, dialer := openConnected(t)
	peer := dialer.Last()
	require.NotNil(t, peer)

	peer.DeliverMessage("first")
	peer.DeliverMessage("second")
	peer.DeliverMessage("first")

	for _, want := range []string{"first", "second", "first"} {
		ev := nextEvent(t, c)
		assert.Equal(t, connection.EventMessage, ev.Kind)
		assert.Equal(t, want, ev.Content)
	}
}

func TestConnection_SkipsUndecodableAndForeignFrames(t *testing.T) {
	c, dialer := openConnected(t)
	peer := dialer.Last()

	peer.Deliver([]byte{0xff, 0xff, 0xff})
	peer.Deliver(nil)
	peer.DeliverMessage("kept")

	ev := nextEvent(t, c)
	assert.Equal(t, connection.Event{Kind: connection.EventMessage, Content: "kept"}, ev)
}

func TestConnection_Send(t *testing.T) {
	c, dialer := openConnected(t)

	c.Send("hello")
	c.Send("")

	assert.Equal(t, []string{"hello", ""}, dialer.Last().WrittenMessages())
}

func TestConnection_Send_BeforeConnectedIsDropped(t *testing.T) {
	dialer := transporttest.NewDialer()
	dialer.Hold()

	c := connection.NewManager(dialer).Open(testEndpoint)
	defer c.Close()

	c.Send("too early")
	dialer.Release()

	ev := nextEvent(t, c)
	require.Equal(t, connection.StateConnected, ev.State)

	assert.Empty(t, dialer.Last().Written(), "message sent before connect must not reach the peer")
}

func TestConnection_Send_WriteErrorIsSwallowed(t *testing.T) {
	c, dialer := openConnected(t)
	dialer.Last().SetWriteError(errors.New("broken pipe"))

	assert.NotPanics(t, func() { c.Send("lost") })
	assert.Equal(t, connection.StateConnected, c.State())
}

func TestConnection_DialFailure(t *testing.T) {
	dialer := transporttest.NewDialer()
	dialer.FailWith(errors.New("connection refused"))

	c := connection.NewManager(dialer).Open(testEndpoint)
	defer c.Close()

	ev := nextEvent(t, c)
	assert.Equal(t, connection.Event{Kind: connection.EventState, State: connection.StateDisconnected}, ev)
	assert.Equal(t, connection.StateDisconnected, c.State())

	c.Send("nobody home")
	assert.Zero(t, dialer.Dials(), "no reconnect attempt expected")
}

func TestConnection_DialTimeout(t *testing.T) {
	dialer := transporttest.NewDialer()
	dialer.Hold()
	defer dialer.Release()

	c := connection.NewManager(dialer, connection.WithDialTimeout(20*time.Millisecond)).Open(testEndpoint)
	defer c.Close()

	ev := nextEvent(t, c)
	assert.Equal(t, connection.StateDisconnected, ev.State)
}

func TestConnection_PeerHangup(t *testing.T) {
	c, dialer := openConnected(t)

	require.NoError(t, dialer.Last().Close())

	ev := nextEvent(t, c)
	assert.Equal(t, connection.Event{Kind: connection.EventState, State: connection.StateDisconnected}, ev)
	assert.Equal(t, connection.StateDisconnected, c.State())

	c.Close()
	_, ok := <-c.Events()
	assert.False(t, ok, "no second disconnect event expected after Close")
}

func TestConnection_Close(t *testing.T) {
	c, dialer := openConnected(t)

	c.Close()

	assert.Equal(t, connection.StateDisconnected, c.State())
	assert.True(t, dialer.Last().IsClosed(), "transport must be released")

	ev, ok := <-c.Events()
	require.True(t, ok)
	assert.Equal(t, connection.StateDisconnected, ev.State)
	_, ok = <-c.Events()
	assert.False(t, ok, "events channel must be closed after Close")
}

func TestConnection_Close_Idempotent(t *testing.T) {
	c, _ := openConnected(t)

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
	assert.Equal(t, connection.StateDisconnected, c.State())
}

func TestConnection_Close_BeforeConnected(t *testing.T) {
	dialer := transporttest.NewDialer()
	dialer.Hold()

	c := connection.NewManager(dialer).Open(testEndpoint)
	c.Close()

	assert.Equal(t, connection.StateDisconnected, c.State())

	dialer.Release()
	assert.Zero(t, dialer.Dials(), "cancelled dial must not produce a connection")

	var states []connection.State
	for ev := range c.Events() {
		states = append(states, ev.State)
	}
	assert.Equal(t, []connection.State{connection.StateDisconnected}, states)
}

func TestConnection_Close_AfterDialSucceededDuringClose(t *testing.T) {
	dialer := transporttest.NewDialer()
	c := connection.NewManager(dialer).Open(testEndpoint)
	c.Close()

	assert.Equal(t, connection.StateDisconnected, c.State())
	if peer := dialer.Last(); peer != nil {
		assert.True(t, peer.IsClosed(), "a connection established during Close must be released")
	}
}

func TestConnection_Close_WhileEventsUndrained(t *testing.T) {
	dialer := transporttest.NewDialer()
	c := connection.NewManager(dialer, connection.WithEventBuffer(1)).Open(testEndpoint)

	require.Eventually(t, func() bool {
		return c.State() == connection.StateConnected
	}, waitFor, tick)

	peer := dialer.Last()
	for i := 0; i < 5; i++ {
		peer.DeliverMessage("flood")
	}

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close blocked on an undrained events channel")
	}
}

func TestConnection_ConcurrentSend(t *testing.T) {
	c, dialer := openConnected(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Send("message")
		}()
	}
	wg.Wait()

	assert.Len(t, dialer.Last().WrittenMessages(), 10)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state connection.State
		want  string
	}{
		{connection.StateConnecting, "connecting"},
		{connection.StateConnected, "connected"},
		{connection.StateDisconnected, "disconnected"},
		{connection.State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}
