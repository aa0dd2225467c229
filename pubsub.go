package a0

import (
	"sync"
	"sync/atomic"

	"github.com/a0-ipc/a0/internal/dispatch"
)

// Publisher writes Packets onto a shared Transport for any number of
// Subscribers to read.
type Publisher struct {
	t *Transport
}

// NewPublisher wraps t for publishing.
func NewPublisher(t *Transport) *Publisher { return &Publisher{t: t} }

// Publish assigns pkt a fresh id if it doesn't have one, appends it to
// the transport, and commits it.
func (p *Publisher) Publish(pkt *Packet) error {
	if pkt.ID == "" {
		if err := Init(pkt); err != nil {
			return err
		}
	}
	return p.t.Locked(func(lt *LockedTransport) error {
		var c Cursor
		return writePacket(lt, &c, pkt)
	})
}

// ReadStart selects what a new Subscriber delivers before following
// newly published packets.
type ReadStart int

const (
	// ReadNew delivers only packets published after the Subscriber
	// starts - the default.
	ReadNew ReadStart = iota
	// ReadAll replays every currently live packet first.
	ReadAll
)

// Subscriber delivers every packet published to a Transport, in commit
// order, to a callback running on its own goroutine.
type Subscriber struct {
	t      *Transport
	onPkt  func(*Packet)
	queue  *dispatch.Queue
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewSubscriber starts a subscriber reading t in the background per
// start, invoking onPacket for each packet in commit order.
func NewSubscriber(t *Transport, start ReadStart, onPacket func(*Packet)) *Subscriber {
	rs := startTail
	if start == ReadAll {
		rs = startHead
	}

	s := &Subscriber{t: t, onPkt: onPacket, queue: dispatch.New()}
	s.wg.Add(2)
	go func() { defer s.wg.Done(); runFrameReader(s.t, &s.closed, s.queue, rs) }()
	go func() { defer s.wg.Done(); s.dispatchLoop() }()
	return s
}

func (s *Subscriber) dispatchLoop() {
	for {
		item, ok := s.queue.Pop()
		if !ok {
			return
		}
		if s.onPkt != nil {
			s.onPkt(item.(*Packet))
		}
	}
}

// Close stops the subscriber's background goroutines and waits for them
// to exit.
func (s *Subscriber) Close() error {
	s.closed.Store(true)
	err := wakeReaders(s.t)
	s.queue.Close()
	s.wg.Wait()
	return err
}
