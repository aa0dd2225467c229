package a0

import (
	"sync"
	"sync/atomic"

	"github.com/a0-ipc/a0/internal/dispatch"
	"github.com/a0-ipc/a0/internal/logging"
)

// Reserved RPC header keys and values. A request, response or cancel
// frame is an ordinary Packet carrying these on top of its own headers.
const (
	HeaderRpcType      = "a0_rpc_type"
	HeaderReqID        = "a0_req_id"
	HeaderProgressDone = "a0_rpc_progress_done"

	rpcTypeRequest  = "request"
	rpcTypeResponse = "response"
	rpcTypeCancel   = "cancel"
)

func headerValue(pkt *Packet, key string) string {
	for _, h := range pkt.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

func writePacket(lt *LockedTransport, c *Cursor, pkt *Packet) error {
	alloc := func(size int) ([]byte, error) { return lt.Alloc(c, size) }
	if _, err := Serialize(pkt, alloc); err != nil {
		return err
	}
	return lt.Commit()
}

// readerStart controls what a runFrameReader delivers on startup.
type readerStart int

const (
	// startTail skips whatever is already in the ring and only delivers
	// frames committed from now on - the RPC convention, since a request
	// or response committed before this end existed can never be ours.
	startTail readerStart = iota
	// startHead replays every currently-live frame before following new
	// ones - the pub/sub "read all history" convention.
	startHead
)

// runFrameReader holds t's lock and pushes each frame's decoded Packet
// onto out, in order, per the start convention. It never invokes a
// callback itself - the frame is copied out and the lock released before
// handing off, so dispatch never runs under the arena mutex. It returns
// once closed reports true.
func runFrameReader(t *Transport, closed *atomic.Bool, out *dispatch.Queue, start readerStart) {
	lt, err := t.Lock()
	if err != nil {
		logging.Error("rpc reader: initial lock failed", "err", err)
		return
	}

	var c Cursor
	var startedEmpty bool
	if start == startHead {
		startedEmpty = true
	} else {
		startedEmpty = lt.Empty()
		if !startedEmpty {
			_ = lt.JumpTail(&c)
		}
	}

	for {
		if closed.Load() {
			_ = lt.Unlock()
			return
		}
		if err := lt.Wait(func() bool {
			return closed.Load() || (startedEmpty && !lt.Empty()) || lt.HasNext(&c)
		}); err != nil {
			logging.Error("rpc reader: wait failed", "err", err)
			_ = lt.Unlock()
			return
		}
		if closed.Load() {
			_ = lt.Unlock()
			return
		}

		if startedEmpty {
			_ = lt.JumpHead(&c)
			startedEmpty = false
		} else {
			_ = lt.Next(&c)
		}

		frame, frErr := lt.Frame(&c)
		if frErr != nil {
			continue
		}
		raw := append([]byte(nil), frame.Payload...)
		if uErr := lt.Unlock(); uErr != nil {
			logging.Error("rpc reader: unlock failed", "err", uErr)
		}

		if pkt, dErr := Deserialize(raw, DefaultAllocator); dErr == nil {
			out.Push(pkt)
		} else {
			logging.Warn("rpc reader: dropping undecodable frame", "err", dErr)
		}

		lt, err = t.Lock()
		if err != nil {
			logging.Error("rpc reader: relock failed", "err", err)
			return
		}
	}
}

func wakeReaders(t *Transport) error {
	return t.Locked(func(lt *LockedTransport) error { return lt.t.cnd.Broadcast(lt.t.mtx) })
}

// RpcServer answers requests written to a shared Transport by a
// population of RpcClients, replying on the same Transport. Requests and
// cancellations are distinguished by the a0_rpc_type header; every other
// frame kind is ignored so a server and its clients can share one ring.
type RpcServer struct {
	t        *Transport
	onReq    func(req *Packet)
	onCancel func(reqID string)
	queue    *dispatch.Queue
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewRpcServer starts a server reading t in the background. onRequest is
// called for every request frame; onCancel (optional) for every cancel
// frame, with the canceled request's id.
func NewRpcServer(t *Transport, onRequest func(*Packet), onCancel func(reqID string)) *RpcServer {
	s := &RpcServer{t: t, onReq: onRequest, onCancel: onCancel, queue: dispatch.New()}
	s.wg.Add(2)
	go func() { defer s.wg.Done(); runFrameReader(s.t, &s.closed, s.queue, startTail) }()
	go func() { defer s.wg.Done(); s.dispatchLoop() }()
	return s
}

func (s *RpcServer) dispatchLoop() {
	for {
		item, ok := s.queue.Pop()
		if !ok {
			return
		}
		pkt := item.(*Packet)
		switch headerValue(pkt, HeaderRpcType) {
		case rpcTypeRequest:
			if s.onReq != nil {
				s.onReq(pkt)
			}
		case rpcTypeCancel:
			if s.onCancel != nil {
				s.onCancel(headerValue(pkt, HeaderReqID))
			}
		}
	}
}

func (s *RpcServer) reply(reqID string, resp *Packet, final bool) error {
	if s.closed.Load() {
		return newErr("RpcServer.Reply", CodeShutdown, "server is closed")
	}
	if resp.ID == "" {
		if err := Init(resp); err != nil {
			return err
		}
	}
	extra := []Header{
		{Key: HeaderReqID, Value: reqID},
		{Key: HeaderRpcType, Value: rpcTypeResponse},
	}
	if final {
		extra = append(extra, Header{Key: HeaderProgressDone, Value: "true"})
	}
	out := &Packet{ID: resp.ID, Headers: append(extra, resp.Headers...), Payload: resp.Payload}

	return s.t.Locked(func(lt *LockedTransport) error {
		var c Cursor
		return writePacket(lt, &c, out)
	})
}

// Reply sends resp as the final (and possibly only) response to reqID.
func (s *RpcServer) Reply(reqID string, resp *Packet) error { return s.reply(reqID, resp, true) }

// ReplyProgress sends resp as a non-final response to reqID; the client's
// callback is invoked without retiring the request. Call Reply once more
// to close it out.
func (s *RpcServer) ReplyProgress(reqID string, resp *Packet) error {
	return s.reply(reqID, resp, false)
}

// Close stops the server's background goroutines and waits for them to
// exit. Outstanding requests are simply abandoned.
func (s *RpcServer) Close() error {
	s.closed.Store(true)
	err := wakeReaders(s.t)
	s.queue.Close()
	s.wg.Wait()
	return err
}

// RpcClient sends requests on a shared Transport and routes responses
// back to the callback registered for their request id.
type RpcClient struct {
	t           *Transport
	queue       *dispatch.Queue
	mu          sync.Mutex
	outstanding map[string]func(pkt *Packet, final bool)
	closed      atomic.Bool
	wg          sync.WaitGroup
}

// NewRpcClient starts a client reading t in the background.
func NewRpcClient(t *Transport) *RpcClient {
	c := &RpcClient{
		t:           t,
		queue:       dispatch.New(),
		outstanding: make(map[string]func(*Packet, bool)),
	}
	c.wg.Add(2)
	go func() { defer c.wg.Done(); runFrameReader(c.t, &c.closed, c.queue, startTail) }()
	go func() { defer c.wg.Done(); c.dispatchLoop() }()
	return c
}

func (c *RpcClient) dispatchLoop() {
	for {
		item, ok := c.queue.Pop()
		if !ok {
			return
		}
		pkt := item.(*Packet)
		if headerValue(pkt, HeaderRpcType) != rpcTypeResponse {
			continue
		}
		reqID := headerValue(pkt, HeaderReqID)
		final := headerValue(pkt, HeaderProgressDone) == "true"

		c.mu.Lock()
		cb, found := c.outstanding[reqID]
		if found && final {
			delete(c.outstanding, reqID)
		}
		c.mu.Unlock()

		if found {
			cb(pkt, final)
		}
	}
}

// SendProgressive sends req and calls onResponse for every response frame
// the server sends back, in order, until one arrives with final=true.
func (c *RpcClient) SendProgressive(req *Packet, onResponse func(resp *Packet, final bool)) error {
	if c.closed.Load() {
		return newErr("RpcClient.Send", CodeShutdown, "client is closed")
	}
	if req.ID == "" {
		if err := Init(req); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.outstanding[req.ID] = onResponse
	c.mu.Unlock()

	out := &Packet{
		ID:      req.ID,
		Headers: append([]Header{{Key: HeaderRpcType, Value: rpcTypeRequest}}, req.Headers...),
		Payload: req.Payload,
	}
	return c.t.Locked(func(lt *LockedTransport) error {
		var cur Cursor
		return writePacket(lt, &cur, out)
	})
}

// Send sends req and calls onResponse exactly once, with the server's
// final response.
func (c *RpcClient) Send(req *Packet, onResponse func(resp *Packet)) error {
	return c.SendProgressive(req, func(resp *Packet, final bool) {
		if final {
			onResponse(resp)
		}
	})
}

// Cancel notifies the server that reqID is no longer of interest and
// drops any locally registered callback for it.
func (c *RpcClient) Cancel(reqID string) error {
	c.mu.Lock()
	delete(c.outstanding, reqID)
	c.mu.Unlock()

	out := &Packet{Headers: []Header{
		{Key: HeaderRpcType, Value: rpcTypeCancel},
		{Key: HeaderReqID, Value: reqID},
	}}
	if err := Init(out); err != nil {
		return err
	}
	return c.t.Locked(func(lt *LockedTransport) error {
		var cur Cursor
		return writePacket(lt, &cur, out)
	})
}

// Close stops the client's background goroutines and waits for them to
// exit. Outstanding callbacks are simply dropped.
func (c *RpcClient) Close() error {
	c.closed.Store(true)
	err := wakeReaders(c.t)
	c.queue.Close()
	c.wg.Wait()
	return err
}
