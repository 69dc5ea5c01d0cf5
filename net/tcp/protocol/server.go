package protocol

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Meander-Cloud/go-transport/tcp"

	"github.com/Meander-Cloud/go-quickplay/arbiter"
)

// ServerHandler callbacks are invoked on the arbiter goroutine, in the
// order events happened on each connection.
type ServerHandler interface {
	PlayerJoin(*Server, *ConnState)
	PlayerData(*Server, *ConnState, []byte)
	PlayerExit(*Server, *ConnState)
}

type ServerOptions struct {
	*tcp.Options
	Arbiter *arbiter.Arbiter
	ServerHandler

	ReadBufferLen uint16
	SelfID        string
}

type Server struct {
	options    *ServerOptions
	inShutdown atomic.Bool

	// if increment overflow will wrap to zero
	connIDGen atomic.Uint32

	mutex   sync.Mutex
	connMap map[uint32]*ConnState // connID -> tcp connection state
}

func NewServer(options *ServerOptions) (*Server, error) {
	if options.Arbiter == nil {
		err := fmt.Errorf("%s: nil Arbiter", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	if options.ServerHandler == nil {
		err := fmt.Errorf("%s: nil ServerHandler", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	if options.SelfID == "" {
		err := fmt.Errorf("%s: invalid SelfID", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	p := &Server{
		options:    options,
		inShutdown: atomic.Bool{},

		connIDGen: atomic.Uint32{},

		mutex:   sync.Mutex{},
		connMap: make(map[uint32]*ConnState),
	}

	return p, nil
}

func (p *Server) Options() *ServerOptions {
	return p.options
}

func (p *Server) Close() {
	log.Printf("%s: protocol closing", p.options.LogPrefix)
	p.inShutdown.Store(true)

	// close connections, ReadLoop goroutines observe the error and dispatch PlayerExit
	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		for _, connState := range p.connMap {
			connState.Ready.Store(false)
			connState.Conn.Close()
		}
	}()

	log.Printf("%s: protocol closed", p.options.LogPrefix)
}

func (p *Server) ReadLoop(conn net.Conn) {
	connState := newConnState(
		p.getNextConnID(),
		conn,
		"",
	)
	connState.Descriptor = fmt.Sprintf(
		"[%d]%s<-<%s>",
		connState.ConnID,
		p.options.SelfID,
		conn.RemoteAddr().String(),
	)
	descriptor := connState.Descriptor

	network := conn.RemoteAddr().Network()
	joinDispatched := false

	log.Printf("%s: %s: new %s connection", p.options.LogPrefix, descriptor, network)

	defer func() {
		log.Printf("%s: %s: closing %s connection", p.options.LogPrefix, descriptor, network)
		connState.Ready.Store(false)

		if joinDispatched {
			// queued behind every data chunk of this connection
			p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					p.options.PlayerExit(p, connState)
				},
			)
		}

		func() {
			p.mutex.Lock()
			defer p.mutex.Unlock()

			_, found := p.connMap[connState.ConnID]
			if !found {
				log.Printf("%s: %s: connID=%d not found in connection map", p.options.LogPrefix, descriptor, connState.ConnID)
				return
			}
			delete(p.connMap, connState.ConnID)
		}()

		conn.Close()
		log.Printf("%s: %s: %s connection closed, selfInShutdown=%t", p.options.LogPrefix, descriptor, network, p.inShutdown.Load())
	}()

	if p.inShutdown.Load() {
		log.Printf("%s: %s: in shutdown, refusing connection", p.options.LogPrefix, descriptor)
		return
	}

	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		cached, found := p.connMap[connState.ConnID]
		if found {
			log.Printf("%s: %s: overriding duplicate connection %s", p.options.LogPrefix, descriptor, cached.Descriptor)
		}
		p.connMap[connState.ConnID] = connState
	}()

	p.options.Arbiter.Dispatch(
		func() {
			// invoked on arbiter goroutine
			connState.Ready.Store(true)
			p.options.PlayerJoin(p, connState)
		},
	)
	joinDispatched = true

	readChunks(
		p.options.LogPrefix,
		p.options.LogDebug,
		connState,
		int(p.options.ReadBufferLen),
		func(chunk []byte) {
			p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					p.options.PlayerData(p, connState, chunk)
				},
			)
		},
	)
}

// invoked on ReadLoop goroutine
func (p *Server) getNextConnID() uint32 {
	return p.connIDGen.Add(1)
}

// invoked on any goroutine
func (p *Server) CheckConnection(connID uint32) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	connState, found := p.connMap[connID]
	if !found {
		return false
	}

	return connState.Ready.Load()
}

// invoked on any goroutine
func (p *Server) GetConnection(connID uint32) (*ConnState, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	connState, found := p.connMap[connID]
	if !found {
		err := fmt.Errorf("%s: connID=%d, no active connection", p.options.LogPrefix, connID)
		log.Printf("%s", err.Error())
		return nil, err
	}
	if !connState.Ready.Load() {
		err := fmt.Errorf("%s: %s: connection not ready", p.options.LogPrefix, connState.Descriptor)
		log.Printf("%s", err.Error())
		return nil, err
	}

	return connState, nil
}

// caller must be on arbiter goroutine
func (p *Server) WriteFrame(connID uint32, buf []byte) error {
	connState, err := p.GetConnection(connID)
	if err != nil {
		return err
	}

	return writeFrame(
		p.options.LogPrefix,
		p.options.LogDebug,
		connState,
		buf,
	)
}
