package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/warboard/go/internal/models"
)

type controlFrame struct {
	kind int
	data []byte
}

type readResult struct {
	data []byte
	err  error
}

// fakeConn records what a session writes and feeds it scripted reads
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	controls []controlFrame
	written  chan []byte

	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once

	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		written: make(chan []byte, 64),
		reads:   make(chan readResult),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, r.data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.messages = append(c.messages, data)
	c.written <- data
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, controlFrame{kind: messageType, data: data})
	return nil
}

func (c *fakeConn) SetReadLimit(limit int64)                    {}
func (c *fakeConn) SetReadDeadline(t time.Time) error           { return nil }
func (c *fakeConn) SetPongHandler(h func(appData string) error) {}
func (c *fakeConn) SetPingHandler(h func(appData string) error) {}
func (c *fakeConn) SetWriteDeadline(t time.Time) error          { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func (c *fakeConn) controlKinds() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]int, 0, len(c.controls))
	for _, f := range c.controls {
		kinds = append(kinds, f.kind)
	}
	return kinds
}

// next waits for the next pushed payload, returning nil after a second
func (c *fakeConn) next() []byte {
	select {
	case data := <-c.written:
		return data
	case <-time.After(time.Second):
		return nil
	}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func testWar(diffs ...int) models.War {
	home := make([]int, len(diffs))
	enemy := make([]int, len(diffs))
	for i, d := range diffs {
		home[i] = 41 + d/2
		enemy[i] = 41 - d/2
	}
	return models.War{
		Tag:        "Lx",
		EnemyTag:   "Ve",
		HomeScore:  home,
		EnemyScore: enemy,
		Diff:       diffs,
	}
}

type nudgeRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (n *nudgeRecorder) Nudge(warID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, warID)
	return 1
}
