package a0

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPubSubDeliversInCommitOrder(t *testing.T) {
	arena := NewArena(make([]byte, 1<<16), ModeExclusive)
	tr, err := NewTransport(arena)
	require.NoError(t, err)

	pub := NewPublisher(tr)

	received := make(chan string, 8)
	sub := NewSubscriber(tr, ReadNew, func(pkt *Packet) {
		received <- string(pkt.Payload)
	})
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)

	for _, payload := range []string{"one", "two", "three"} {
		require.NoError(t, pub.Publish(&Packet{Payload: []byte(payload)}))
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("received %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestPubSubReadAllReplaysHistory(t *testing.T) {
	arena := NewArena(make([]byte, 1<<16), ModeExclusive)
	tr, err := NewTransport(arena)
	require.NoError(t, err)

	pub := NewPublisher(tr)
	require.NoError(t, pub.Publish(&Packet{Payload: []byte("before")}))

	received := make(chan string, 4)
	sub := NewSubscriber(tr, ReadAll, func(pkt *Packet) {
		received <- string(pkt.Payload)
	})
	defer sub.Close()

	select {
	case got := <-received:
		if got != "before" {
			t.Errorf("replayed payload = %q, want %q", got, "before")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAll subscriber never replayed the pre-existing packet")
	}

	require.NoError(t, pub.Publish(&Packet{Payload: []byte("after")}))
	select {
	case got := <-received:
		if got != "after" {
			t.Errorf("followed payload = %q, want %q", got, "after")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAll subscriber never followed the newly published packet")
	}
}

func TestPubSubReadNewSkipsHistory(t *testing.T) {
	arena := NewArena(make([]byte, 1<<16), ModeExclusive)
	tr, err := NewTransport(arena)
	require.NoError(t, err)

	pub := NewPublisher(tr)
	require.NoError(t, pub.Publish(&Packet{Payload: []byte("missed")}))

	received := make(chan string, 4)
	sub := NewSubscriber(tr, ReadNew, func(pkt *Packet) {
		received <- string(pkt.Payload)
	})
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, pub.Publish(&Packet{Payload: []byte("seen")}))

	select {
	case got := <-received:
		if got != "seen" {
			t.Errorf("received %q, want %q", got, "seen")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never observed the post-start packet")
	}

	select {
	case extra := <-received:
		t.Errorf("ReadNew subscriber replayed history: %q", extra)
	case <-time.After(50 * time.Millisecond):
	}
}
