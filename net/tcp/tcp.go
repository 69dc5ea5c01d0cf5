package tcp

import (
	"time"

	"github.com/Meander-Cloud/go-transport/tcp"

	"github.com/Meander-Cloud/go-quickplay/arbiter"
	"github.com/Meander-Cloud/go-quickplay/config"
	tp "github.com/Meander-Cloud/go-quickplay/net/tcp/protocol"
)

type ServerStruct struct {
	protocol  *tp.Server
	tcpServer *tcp.TcpServer
}

type ClientStruct struct {
	protocol  *tp.Client
	tcpClient *tcp.TcpClient
}

// Matrix holds the transport of one process, the listening side for a
// lobby or the dialing side for a client.
type Matrix struct {
	server *ServerStruct
	client *ClientStruct
}

// link collects the transport settings shared by both sides, zero valued
// fields fall back to the config package defaults.
type link struct {
	address           string
	keepAliveInterval uint16 // seconds
	keepAliveCount    uint16
	dialTimeout       uint16 // seconds
	reconnectInterval uint16 // seconds
	reconnectLogEvery uint32
	readBufferLen     uint16
	logPrefix         string
	logDebug          bool
}

func secondsOr(seconds uint16, fallback time.Duration) time.Duration {
	if seconds == 0 {
		return fallback
	}
	return time.Second * time.Duration(seconds)
}

func valueOr[T uint16 | uint32](v T, fallback T) T {
	if v == 0 {
		return fallback
	}
	return v
}

func (l *link) options() *tcp.Options {
	return &tcp.Options{
		Address:           l.address,
		KeepAliveInterval: secondsOr(l.keepAliveInterval, config.TcpKeepAliveInterval),
		KeepAliveCount:    valueOr(l.keepAliveCount, config.TcpKeepAliveCount),
		DialTimeout:       secondsOr(l.dialTimeout, config.TcpDialTimeout),
		ReconnectInterval: secondsOr(l.reconnectInterval, config.TcpReconnectInterval),
		ReconnectLogEvery: valueOr(l.reconnectLogEvery, config.TcpReconnectLogEvery),
		Protocol:          nil,
		LogPrefix:         l.logPrefix,
		LogDebug:          l.logDebug,
	}
}

func (l *link) getReadBufferLen() uint16 {
	return valueOr(l.readBufferLen, config.ReadBufferLen)
}

func NewServerMatrix(
	c *config.Config,
	a *arbiter.Arbiter,
	sh tp.ServerHandler,
	selfID string,
) (*Matrix, error) {
	l := &link{
		address:           c.ListenAddress,
		keepAliveInterval: c.TcpKeepAliveInterval,
		keepAliveCount:    c.TcpKeepAliveCount,
		readBufferLen:     c.ReadBufferLen,
		logPrefix:         c.LogPrefix + "-Server",
		logDebug:          c.LogDebug,
	}

	m := &Matrix{
		server: &ServerStruct{
			protocol:  nil,
			tcpServer: nil,
		},
		client: nil,
	}

	var err error
	defer func() {
		if err != nil {
			m.Shutdown() // wait
		}
	}()

	m.server.protocol, err = tp.NewServer(
		&tp.ServerOptions{
			Options:       l.options(),
			Arbiter:       a,
			ServerHandler: sh,
			ReadBufferLen: l.getReadBufferLen(),
			SelfID:        selfID,
		},
	)
	if err != nil {
		return nil, err
	}
	m.server.protocol.Options().Protocol = m.server.protocol

	m.server.tcpServer, err = tcp.NewTcpServer(m.server.protocol.Options().Options)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func NewClientMatrix(
	c *config.PeerConfig,
	a *arbiter.Arbiter,
	ch tp.ClientHandler,
	selfID string,
) (*Matrix, error) {
	l := &link{
		address:           c.ServerAddress,
		keepAliveInterval: c.TcpKeepAliveInterval,
		keepAliveCount:    c.TcpKeepAliveCount,
		dialTimeout:       c.TcpDialTimeout,
		reconnectInterval: c.TcpReconnectInterval,
		reconnectLogEvery: c.TcpReconnectLogEvery,
		readBufferLen:     c.ReadBufferLen,
		logPrefix:         c.LogPrefix + "-Client",
		logDebug:          c.LogDebug,
	}

	m := &Matrix{
		server: nil,
		client: &ClientStruct{
			protocol:  nil,
			tcpClient: nil,
		},
	}

	var err error
	defer func() {
		if err != nil {
			m.Shutdown() // wait
		}
	}()

	m.client.protocol, err = tp.NewClient(
		&tp.ClientOptions{
			Options:       l.options(),
			Arbiter:       a,
			ClientHandler: ch,
			ReadBufferLen: l.getReadBufferLen(),
			SelfID:        selfID,
		},
	)
	if err != nil {
		return nil, err
	}
	m.client.protocol.Options().Protocol = m.client.protocol

	m.client.tcpClient, err = tcp.NewTcpClient(m.client.protocol.Options().Options)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Matrix) Shutdown() {
	if m.server != nil &&
		m.server.tcpServer != nil {
		m.server.tcpServer.Shutdown() // wait
	}

	if m.client != nil &&
		m.client.tcpClient != nil {
		m.client.tcpClient.Shutdown() // wait
	}

	<-time.After(time.Second)
}

func (m *Matrix) Server() *tp.Server {
	if m.server == nil {
		return nil
	}
	return m.server.protocol
}

func (m *Matrix) Client() *tp.Client {
	if m.client == nil {
		return nil
	}
	return m.client.protocol
}
