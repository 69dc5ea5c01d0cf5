package config

import (
	"fmt"
	"log"
	"time"
)

const (
	// defaults for when not provided in Config
	TcpKeepAliveInterval time.Duration = time.Second * 17
	TcpKeepAliveCount    uint16        = 2
	TcpDialTimeout       time.Duration = time.Second * 3
	TcpReconnectInterval time.Duration = time.Second * 5
	TcpReconnectLogEvery uint32        = 12
	ReadBufferLen        uint16        = 1024
	PlayersPerMatch      uint16        = 2
	ResendInterval       time.Duration = time.Second * 5
	SnapshotInterval     time.Duration = time.Second * 300
)

// Config drives the lobby process. Zero valued numeric fields fall back to
// the package defaults above.
type Config struct {
	Host string

	ListenAddress        string
	TcpKeepAliveInterval uint16 // seconds
	TcpKeepAliveCount    uint16
	ReadBufferLen        uint16

	PlayersPerMatch uint16
	MaxFrameSize    uint16
	ResendInterval  uint16 // seconds

	StatusAddress    string
	BrokerURL        string
	SnapshotPath     string
	SnapshotInterval uint16 // seconds

	LogPrefix string
	LogDebug  bool
}

// PeerConfig drives a client process connecting to a lobby.
type PeerConfig struct {
	Host string

	ServerAddress        string
	TcpKeepAliveInterval uint16 // seconds
	TcpKeepAliveCount    uint16
	TcpDialTimeout       uint16 // seconds
	TcpReconnectInterval uint16 // seconds
	TcpReconnectLogEvery uint32
	ReadBufferLen        uint16

	MaxFrameSize   uint16
	ResendInterval uint16 // seconds

	CoreCount    uint8
	CPUSpeedInt  uint8
	CPUSpeedFrac uint8

	LogPrefix string
	LogDebug  bool
}

func (c *Config) Validate() error {
	if c == nil {
		err := fmt.Errorf("nil config")
		log.Printf("%s", err.Error())
		return err
	}

	if c.Host == "" {
		err := fmt.Errorf("invalid Host=%s", c.Host)
		log.Printf("%s", err.Error())
		return err
	}

	if c.ListenAddress == "" {
		err := fmt.Errorf("invalid ListenAddress=%s", c.ListenAddress)
		log.Printf("%s", err.Error())
		return err
	}

	if c.PlayersPerMatch == 1 {
		err := fmt.Errorf("invalid PlayersPerMatch=%d, match needs at least two players", c.PlayersPerMatch)
		log.Printf("%s", err.Error())
		return err
	}

	err := validateFrameSize(c.MaxFrameSize)
	if err != nil {
		return err
	}

	if c.SnapshotPath != "" && c.SnapshotInterval == 0 {
		log.Printf("%s: SnapshotInterval not set, using %v", c.LogPrefix, SnapshotInterval)
	}

	return nil
}

func (c *PeerConfig) Validate() error {
	if c == nil {
		err := fmt.Errorf("nil peer config")
		log.Printf("%s", err.Error())
		return err
	}

	if c.Host == "" {
		err := fmt.Errorf("invalid Host=%s", c.Host)
		log.Printf("%s", err.Error())
		return err
	}

	if c.ServerAddress == "" {
		err := fmt.Errorf("invalid ServerAddress=%s", c.ServerAddress)
		log.Printf("%s", err.Error())
		return err
	}

	if c.CoreCount == 0 {
		err := fmt.Errorf("invalid CoreCount=%d", c.CoreCount)
		log.Printf("%s", err.Error())
		return err
	}

	return validateFrameSize(c.MaxFrameSize)
}

// GetPlayersPerMatch returns the configured batch size or its default.
func (c *Config) GetPlayersPerMatch() uint16 {
	if c.PlayersPerMatch == 0 {
		return PlayersPerMatch
	}
	return c.PlayersPerMatch
}

func (c *Config) GetResendInterval() time.Duration {
	return durationOr(c.ResendInterval, ResendInterval)
}

func (c *Config) GetSnapshotInterval() time.Duration {
	return durationOr(c.SnapshotInterval, SnapshotInterval)
}

func (c *PeerConfig) GetResendInterval() time.Duration {
	return durationOr(c.ResendInterval, ResendInterval)
}

func durationOr(seconds uint16, fallback time.Duration) time.Duration {
	if seconds == 0 {
		return fallback
	}
	return time.Second * time.Duration(seconds)
}
