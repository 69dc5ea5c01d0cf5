package protocol

import (
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trickleConn accepts at most step bytes per Write
type trickleConn struct {
	net.Conn
	step    int
	failAt  int
	written []byte
	calls   int
	closed  bool
}

func (c *trickleConn) Write(b []byte) (int, error) {
	c.calls++
	if c.failAt > 0 && c.calls == c.failAt {
		return 0, fmt.Errorf("connection reset by peer")
	}
	n := c.step
	if n > len(b) {
		n = len(b)
	}
	c.written = append(c.written, b[:n]...)
	return n, nil
}

func (c *trickleConn) SetWriteDeadline(time.Time) error {
	return nil
}

func (c *trickleConn) Close() error {
	c.closed = true
	return nil
}

func TestWriteFramePartialWrites(t *testing.T) {
	conn := &trickleConn{step: 3}
	cs := newConnState(1, conn, "[1]test")

	frame := []byte{2, 8, 0, 4, 2, 50, 0, 0}
	require.NoError(t, writeFrame("test", false, cs, frame))
	assert.Equal(t, frame, conn.written)
	assert.Equal(t, 3, conn.calls)
}

func TestWriteFrameHardError(t *testing.T) {
	conn := &trickleConn{step: 1, failAt: 2}
	cs := newConnState(1, conn, "[1]test")

	err := writeFrame("test", false, cs, []byte{5, 3, 0})
	assert.Error(t, err)
	assert.Equal(t, []byte{5}, conn.written)

	// a torn frame cannot be resent from byte 0
	assert.True(t, conn.closed)
	assert.False(t, cs.Ready.Load())
}

func TestWriteFrameErrorBeforeFirstByteKeepsConn(t *testing.T) {
	conn := &trickleConn{step: 1, failAt: 1}
	cs := newConnState(1, conn, "[1]test")
	cs.Ready.Store(true)

	err := writeFrame("test", false, cs, []byte{5, 3, 0})
	assert.Error(t, err)
	assert.Empty(t, conn.written)
	assert.False(t, conn.closed)
	assert.True(t, cs.Ready.Load())

	// the retry goes out whole
	conn.failAt = 0
	require.NoError(t, writeFrame("test", false, cs, []byte{5, 3, 0}))
	assert.Equal(t, []byte{5, 3, 0}, conn.written)
}

func TestWriteFrameZeroProgress(t *testing.T) {
	conn := &trickleConn{step: 0}
	cs := newConnState(1, conn, "[1]test")

	err := writeFrame("test", false, cs, []byte{1, 3, 0})
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.False(t, conn.closed)
}

func TestReadChunksForwardsUntilHangup(t *testing.T) {
	local, remote := net.Pipe()
	cs := newConnState(1, local, "[1]test")

	var mutex sync.Mutex
	var got []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		readChunks("test", false, cs, 4, func(chunk []byte) {
			mutex.Lock()
			defer mutex.Unlock()
			assert.LessOrEqual(t, len(chunk), 4)
			got = append(got, chunk...)
		})
	}()

	_, err := remote.Write([]byte{2, 8, 0, 4, 2, 50, 0, 0})
	require.NoError(t, err)
	remote.Close()

	select {
	case <-done:
	case <-time.After(time.Second * 3):
		t.Fatal("readChunks did not return on hangup")
	}

	mutex.Lock()
	defer mutex.Unlock()
	assert.Equal(t, []byte{2, 8, 0, 4, 2, 50, 0, 0}, got)
	local.Close()
}
