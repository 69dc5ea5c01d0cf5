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

// ClientHandler callbacks are invoked on the arbiter goroutine.
type ClientHandler interface {
	LobbyJoin(*Client, *ConnState)
	LobbyData(*Client, *ConnState, []byte)
	LobbyExit(*Client, *ConnState)
}

type ClientOptions struct {
	*tcp.Options
	Arbiter *arbiter.Arbiter
	ClientHandler

	ReadBufferLen uint16
	SelfID        string
}

type Client struct {
	options           *ClientOptions
	defaultDescriptor string
	inShutdown        atomic.Bool

	// if increment overflow will wrap to zero
	connIDGen atomic.Uint32

	mutex     sync.Mutex
	connState *ConnState // current active tcp connection, if any
}

func NewClient(options *ClientOptions) (*Client, error) {
	if options.Arbiter == nil {
		err := fmt.Errorf("%s: nil Arbiter", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	if options.ClientHandler == nil {
		err := fmt.Errorf("%s: nil ClientHandler", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	if options.SelfID == "" {
		err := fmt.Errorf("%s: invalid SelfID", options.LogPrefix)
		log.Printf("%s", err.Error())
		return nil, err
	}

	p := &Client{
		options: options,
		defaultDescriptor: fmt.Sprintf(
			"%s-><%s>",
			options.SelfID,
			options.Address,
		),
		inShutdown: atomic.Bool{},

		connIDGen: atomic.Uint32{},

		mutex:     sync.Mutex{},
		connState: nil,
	}

	return p, nil
}

func (p *Client) Options() *ClientOptions {
	return p.options
}

func (p *Client) Close() {
	log.Printf("%s: %s: protocol closing", p.options.LogPrefix, p.defaultDescriptor)
	p.inShutdown.Store(true)

	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		if p.connState == nil {
			log.Printf("%s: %s: no active connection", p.options.LogPrefix, p.defaultDescriptor)
			return
		}

		p.connState.Ready.Store(false)
		p.connState.Conn.Close()
	}()

	log.Printf("%s: %s: protocol closed", p.options.LogPrefix, p.defaultDescriptor)
}

func (p *Client) ReadLoop(conn net.Conn) {
	connState := newConnState(
		p.getNextConnID(),
		conn,
		"",
	)
	connState.Descriptor = fmt.Sprintf(
		"[%d]%s-><%s>",
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
			p.options.Arbiter.Dispatch(
				func() {
					// invoked on arbiter goroutine
					p.options.LobbyExit(p, connState)
				},
			)
		}

		func() {
			p.mutex.Lock()
			defer p.mutex.Unlock()

			if p.connState == nil {
				log.Printf("%s: %s: no connection cached, state corrupt", p.options.LogPrefix, descriptor)
				return
			}

			if connState.ConnID != p.connState.ConnID {
				log.Printf("%s: %s: cached connection %s differs, state corrupt", p.options.LogPrefix, descriptor, p.connState.Descriptor)
				return
			}

			p.connState = nil
		}()

		conn.Close()
		log.Printf("%s: %s: %s connection closed, selfInShutdown=%t", p.options.LogPrefix, descriptor, network, p.inShutdown.Load())
	}()

	func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()

		if p.connState != nil {
			log.Printf("%s: %s: overriding existing connection %s", p.options.LogPrefix, descriptor, p.connState.Descriptor)
		}
		p.connState = connState
	}()

	p.options.Arbiter.Dispatch(
		func() {
			// invoked on arbiter goroutine
			connState.Ready.Store(true)
			p.options.LobbyJoin(p, connState)
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
					p.options.LobbyData(p, connState, chunk)
				},
			)
		},
	)
}

// invoked on ReadLoop goroutine
func (p *Client) getNextConnID() uint32 {
	return p.connIDGen.Add(1)
}

// invoked on any goroutine
func (p *Client) CheckConnection() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.connState == nil {
		return false
	}

	return p.connState.Ready.Load()
}

// invoked on any goroutine
func (p *Client) GetConnection(connID uint32) (*ConnState, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.connState == nil {
		err := fmt.Errorf("%s: %s: no active connection", p.options.LogPrefix, p.defaultDescriptor)
		log.Printf("%s", err.Error())
		return nil, err
	}
	if p.connState.ConnID != connID {
		err := fmt.Errorf("%s: %s: connID=%d superseded by %d", p.options.LogPrefix, p.defaultDescriptor, connID, p.connState.ConnID)
		log.Printf("%s", err.Error())
		return nil, err
	}
	if !p.connState.Ready.Load() {
		err := fmt.Errorf("%s: %s: connection not ready", p.options.LogPrefix, p.connState.Descriptor)
		log.Printf("%s", err.Error())
		return nil, err
	}

	return p.connState, nil
}

// caller must be on arbiter goroutine
func (p *Client) WriteFrame(connID uint32, buf []byte) error {
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
