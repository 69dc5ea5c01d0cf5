package config

import (
	"fmt"
	"log"

	m "github.com/Meander-Cloud/go-quickplay/message"
)

// smallest frame that must still fit: SendConnectInfo
const minFrameSize uint16 = m.ConnectInfoFrameLen

func validateFrameSize(maxFrameSize uint16) error {
	if maxFrameSize == 0 {
		// default applies
		return nil
	}

	if maxFrameSize < minFrameSize || maxFrameSize > m.MaxFrameSize {
		err := fmt.Errorf("invalid MaxFrameSize=%d, must be within [%d, %d]", maxFrameSize, minFrameSize, m.MaxFrameSize)
		log.Printf("%s", err.Error())
		return err
	}

	return nil
}

// GetMaxFrameSize returns the configured frame limit or the wire maximum.
func (c *Config) GetMaxFrameSize() uint16 {
	if c.MaxFrameSize == 0 {
		return m.MaxFrameSize
	}
	return c.MaxFrameSize
}

func (c *PeerConfig) GetMaxFrameSize() uint16 {
	if c.MaxFrameSize == 0 {
		return m.MaxFrameSize
	}
	return c.MaxFrameSize
}
