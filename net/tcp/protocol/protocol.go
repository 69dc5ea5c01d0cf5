package protocol

import (
	"fmt"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"
)

const (
	tcpWriteDeadline time.Duration = time.Second * 3
)

const (
	typicalBufferLen int = 1024 // 1 KB
)

type ConnState struct {
	ConnID     uint32
	Conn       net.Conn
	Descriptor string
	Ready      atomic.Bool
}

func newConnState(connID uint32, conn net.Conn, descriptor string) *ConnState {
	return &ConnState{
		ConnID:     connID,
		Conn:       conn,
		Descriptor: descriptor,
		Ready:      atomic.Bool{},
	}
}

// invoked on arbiter goroutine
//
// writeFrame keeps writing until the whole frame is on the wire, the
// transport may take fewer bytes per call. Only a hard error aborts.
//
// A frame that failed before its first byte can be sent again as is. Once
// part of it is on the wire the stream cannot be resynchronized, so the
// connection is closed and its ReadLoop tears the player down.
func writeFrame(logPrefix string, logDebug bool, connState *ConnState, buf []byte) error {
	bufLen := len(buf)

	connState.Conn.SetWriteDeadline(time.Now().UTC().Add(tcpWriteDeadline))

	written := 0
	calls := 0
	for written < bufLen {
		n, err := connState.Conn.Write(buf[written:])
		written += n
		calls++
		if err == nil && n == 0 {
			err = fmt.Errorf("%s: %s: %w after %d of %d bytes", logPrefix, connState.Descriptor, io.ErrShortWrite, written, bufLen)
		}
		if err != nil {
			log.Printf("%s: %s: failed to write %d bytes %X after %d, err=%s", logPrefix, connState.Descriptor, bufLen, buf, written, err.Error())
			if written > 0 {
				abortConn(logPrefix, connState)
			}
			return err
		}
	}

	if logDebug {
		log.Printf("%s: %s: wrote %d bytes in %d calls, header %X", logPrefix, connState.Descriptor, written, calls, buf[:min(bufLen, 3)])
	}
	return nil
}

func abortConn(logPrefix string, connState *ConnState) {
	connState.Ready.Store(false)

	err := connState.Conn.Close()
	if err != nil {
		log.Printf("%s: %s: failed to close after partial write, err=%s", logPrefix, connState.Descriptor, err.Error())
		return
	}
	log.Printf("%s: %s: closed after partial write", logPrefix, connState.Descriptor)
}

// invoked on ReadLoop goroutine
//
// readChunks forwards whatever each read returns, framing is left to the
// message store. Returns on EOF or error.
func readChunks(logPrefix string, logDebug bool, connState *ConnState, bufLen int, onChunk func([]byte)) {
	if bufLen <= 0 {
		bufLen = typicalBufferLen
	}

	for {
		buf := make([]byte, bufLen)
		n, err := connState.Conn.Read(buf)
		if n > 0 {
			if logDebug {
				log.Printf("%s: %s: read %d bytes", logPrefix, connState.Descriptor, n)
			}

			onChunk(buf[:n])
		}

		if err != nil {
			if err == io.EOF {
				log.Printf("%s: %s: peer hung up", logPrefix, connState.Descriptor)
			} else {
				log.Printf("%s: %s: failed to read, err=%s", logPrefix, connState.Descriptor, err.Error())
			}
			return
		}
	}
}
