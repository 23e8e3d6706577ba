// Package config contains the configuration of the streamer.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/rtcstream/h264frag/pkg/liberrors"
)

// Prefix is the prefix of environment variables.
const Prefix = "h264frag"

const srtpKeyLen = 30 // 16 bytes of master key + 14 bytes of master salt

// Config is the configuration of the streamer.
type Config struct {
	InputFile           string        `envconfig:"INPUT_FILE" required:"true"`
	Destination         string        `envconfig:"DESTINATION" default:"127.0.0.1:5004"`
	MaximumFragmentSize int           `envconfig:"MAXIMUM_FRAGMENT_SIZE" default:"1100"`
	PayloadType         uint8         `envconfig:"PAYLOAD_TYPE" default:"96"`
	FrameRate           float64       `envconfig:"FRAME_RATE" default:"30"`
	RTCPPeriod          time.Duration `envconfig:"RTCP_PERIOD" default:"5s"`
	MulticastTTL        int           `envconfig:"MULTICAST_TTL" default:"16"`
	SRTPKey             string        `envconfig:"SRTP_KEY"`
	SDPFile             string        `envconfig:"SDP_FILE"`
	Loop                bool          `envconfig:"LOOP" default:"false"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	err := envconfig.Process(Prefix, &c)
	if err != nil {
		return nil, err
	}

	err = c.Validate()
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaximumFragmentSize <= 2 {
		return liberrors.ErrInvalidFragmentSize{Size: c.MaximumFragmentSize}
	}

	if c.PayloadType < 96 || c.PayloadType > 127 {
		return fmt.Errorf("invalid payload type (%d), it must be a dynamic payload type (96-127)", c.PayloadType)
	}

	if c.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate (%v)", c.FrameRate)
	}

	if c.RTCPPeriod <= 0 {
		return fmt.Errorf("invalid RTCP period (%v)", c.RTCPPeriod)
	}

	if c.MulticastTTL < 1 || c.MulticastTTL > 255 {
		return fmt.Errorf("invalid multicast TTL (%d)", c.MulticastTTL)
	}

	_, err := c.DestinationAddr()
	if err != nil {
		return err
	}

	_, err = c.SRTPMasterKey()
	return err
}

// DestinationAddr returns the address RTP packets are sent to.
func (c *Config) DestinationAddr() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", c.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination: %w", err)
	}

	if addr.Port == 0 {
		return nil, fmt.Errorf("invalid destination: port is missing")
	}

	return addr, nil
}

// SRTPMasterKey returns the decoded SRTP master key and salt,
// or nil when SRTP is disabled.
func (c *Config) SRTPMasterKey() ([]byte, error) {
	if c.SRTPKey == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(c.SRTPKey)
	if err != nil {
		return nil, liberrors.ErrSRTPKeyInvalid{Err: err}
	}

	if len(key) != srtpKeyLen {
		return nil, liberrors.ErrSRTPKeyInvalid{
			Err: fmt.Errorf("key must be %d bytes long, got %d", srtpKeyLen, len(key)),
		}
	}

	return key, nil
}

// FrameDuration returns the time between two access units.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(float64(time.Second) / c.FrameRate)
}
