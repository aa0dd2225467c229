package a0

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S6 - RPC round trip: a client sends a request, the server observes it
// and replies, and the client's callback fires exactly once with the
// server's response.
func TestRpcRequestResponseRoundTrip(t *testing.T) {
	arena := NewArena(make([]byte, 1<<16), ModeExclusive)
	tr, err := NewTransport(arena)
	require.NoError(t, err)

	requests := make(chan *Packet, 1)
	server := NewRpcServer(tr, func(req *Packet) {
		requests <- req
	}, nil)
	defer server.Close()

	// Give the server's reader goroutine time to attach and start
	// waiting before the client's request is committed; requests are
	// only delivered from this point forward.
	time.Sleep(50 * time.Millisecond)

	client := NewRpcClient(tr)
	defer client.Close()

	responses := make(chan *Packet, 1)
	req := &Packet{Payload: []byte("reply")}
	err = client.Send(req, func(resp *Packet) { responses <- resp })
	require.NoError(t, err)

	select {
	case got := <-requests:
		if string(got.Payload) != "reply" {
			t.Errorf("server saw payload %q, want %q", got.Payload, "reply")
		}
		resp := &Packet{Payload: []byte("echo")}
		require.NoError(t, server.Reply(got.ID, resp))
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the request")
	}

	select {
	case got := <-responses:
		if string(got.Payload) != "echo" {
			t.Errorf("client saw payload %q, want %q", got.Payload, "echo")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed the response")
	}

	select {
	case extra := <-responses:
		t.Errorf("callback fired a second time with %q", extra.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRpcProgressiveReplies(t *testing.T) {
	arena := NewArena(make([]byte, 1<<16), ModeExclusive)
	tr, err := NewTransport(arena)
	require.NoError(t, err)

	var serverReq *Packet
	requestSeen := make(chan struct{})
	server := NewRpcServer(tr, func(req *Packet) {
		serverReq = req
		close(requestSeen)
	}, nil)
	defer server.Close()

	time.Sleep(50 * time.Millisecond)

	client := NewRpcClient(tr)
	defer client.Close()

	type progress struct {
		payload string
		final   bool
	}
	updates := make(chan progress, 4)
	err = client.SendProgressive(&Packet{Payload: []byte("start")}, func(resp *Packet, final bool) {
		updates <- progress{string(resp.Payload), final}
	})
	require.NoError(t, err)

	select {
	case <-requestSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the request")
	}

	require.NoError(t, server.ReplyProgress(serverReq.ID, &Packet{Payload: []byte("step-1")}))
	require.NoError(t, server.Reply(serverReq.ID, &Packet{Payload: []byte("done")}))

	first := <-updates
	if first.payload != "step-1" || first.final {
		t.Errorf("first update = %+v, want {step-1 false}", first)
	}
	second := <-updates
	if second.payload != "done" || !second.final {
		t.Errorf("second update = %+v, want {done true}", second)
	}
}

func TestRpcCancelDropsOutstandingCallback(t *testing.T) {
	arena := NewArena(make([]byte, 1<<16), ModeExclusive)
	tr, err := NewTransport(arena)
	require.NoError(t, err)

	cancels := make(chan string, 1)
	server := NewRpcServer(tr, func(*Packet) {}, func(reqID string) { cancels <- reqID })
	defer server.Close()

	time.Sleep(50 * time.Millisecond)

	client := NewRpcClient(tr)
	defer client.Close()

	called := false
	req := &Packet{Payload: []byte("abandon me")}
	require.NoError(t, client.Send(req, func(*Packet) { called = true }))
	require.NoError(t, client.Cancel(req.ID))

	select {
	case reqID := <-cancels:
		if reqID != req.ID {
			t.Errorf("server saw cancel for %q, want %q", reqID, req.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the cancellation")
	}

	if called {
		t.Errorf("response callback fired after Cancel")
	}
}
