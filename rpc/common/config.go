package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// DefaultMaxFrameSize bounds the size of a single inbound frame. Large
	// reads may exceed the 16-bit length field, so this is well above 64KiB.
	DefaultMaxFrameSize = 16 * 1024 * 1024

	// DefaultMinMid and DefaultMaxMid span the transaction id space usable by
	// ordinary requests. 0 and 0xFFFF are reserved.
	DefaultMinMid uint16 = 0x0001
	DefaultMaxMid uint16 = 0xFFFE

	// Flags2 bits used by the client by default
	Flags2LongNames        uint16 = 0x0001
	Flags2ExtendedSecurity uint16 = 0x0800
	Flags2NTStatus         uint16 = 0x4000
	Flags2Unicode          uint16 = 0x8000
)

// --------------------------------------------------------------------------
// Client configuration structs
// --------------------------------------------------------------------------

// SocketConf holds socket buffer sizes (in bytes, 0 = OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPKeepAliveSec int
	TCPLingerSec    int
	TCPNoDelay      bool
}

// ClientTransportConfig configures how the byte stream to the server is established
type ClientTransportConfig struct {
	Endpoint             string
	RetryCount           int
	ConnectTimeoutSecond int
	MaxFrameSize         int
	SocketConf           SocketConf
	TCPConf              TCPConf
}

// HeaderConfig holds the per-connection header values copied into every
// request created on a connection
type HeaderConfig struct {
	Flags  uint8
	Flags2 uint16
	Pid    uint16
	Uid    uint16
	Tid    uint16
}

// SecurityConfig configures message signing and transport encryption
type SecurityConfig struct {
	SigningEnabled    bool
	SigningKey        []byte
	EncryptionEnabled bool
	EncryptionKey     []byte
	EncryptionContext uint16
}

// ClientConfig holds all configuration parameters of a client connection
type ClientConfig struct {
	Transport ClientTransportConfig
	Header    HeaderConfig
	Security  SecurityConfig

	// transaction id range for ordinary requests
	MinMid uint16
	MaxMid uint16

	// Logging configuration
	LogLevel string
}

// DefaultClientConfig returns a configuration with sane defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport: ClientTransportConfig{
			RetryCount:           3,
			ConnectTimeoutSecond: 10,
			MaxFrameSize:         DefaultMaxFrameSize,
			TCPConf: TCPConf{
				TCPNoDelay: true,
			},
		},
		Header: HeaderConfig{
			Flags2: Flags2LongNames | Flags2NTStatus | Flags2ExtendedSecurity,
			Tid:    0xFFFF,
		},
		MinMid:   DefaultMinMid,
		MaxMid:   DefaultMaxMid,
		LogLevel: "info",
	}
}

// Validate checks the configuration for values that cannot work
func (c *ClientConfig) Validate() error {
	if err := c.ValidateMidRange(); err != nil {
		return err
	}
	if c.Security.SigningEnabled && len(c.Security.SigningKey) == 0 {
		return fmt.Errorf("signing enabled but no signing key configured")
	}
	if c.Security.EncryptionEnabled && len(c.Security.EncryptionKey) == 0 {
		return fmt.Errorf("encryption enabled but no encryption key configured")
	}
	if c.Transport.MaxFrameSize < 0 {
		return fmt.Errorf("invalid max frame size %d", c.Transport.MaxFrameSize)
	}
	return nil
}

// ValidateMidRange checks that [MinMid, MaxMid] is non-empty and leaves out
// the reserved ids 0 and 0xFFFF
func (c *ClientConfig) ValidateMidRange() error {
	if c.MinMid == 0 || c.MaxMid == 0xFFFF || c.MinMid > c.MaxMid {
		return fmt.Errorf("invalid transaction id range [%d, %d]: must be within [1, 65534]", c.MinMid, c.MaxMid)
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Transport settings
	addSection("Transport")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Connect Timeout", fmt.Sprintf("%d sec", c.Transport.ConnectTimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.Transport.MaxFrameSize))
	addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPConf.TCPNoDelay))

	// Header defaults
	addSection("Header")
	addField("Flags", fmt.Sprintf("0x%02x", c.Header.Flags))
	addField("Flags2", fmt.Sprintf("0x%04x", c.Header.Flags2))
	addField("PID", strconv.Itoa(int(c.Header.Pid)))
	addField("UID", strconv.Itoa(int(c.Header.Uid)))
	addField("TID", strconv.Itoa(int(c.Header.Tid)))
	addField("Transaction IDs", fmt.Sprintf("%d - %d", c.MinMid, c.MaxMid))

	// Security, keys are never printed
	addSection("Security")
	addField("Signing", fmt.Sprintf("%t", c.Security.SigningEnabled))
	addField("Encryption", fmt.Sprintf("%t", c.Security.EncryptionEnabled))
	if c.Security.EncryptionEnabled {
		addField("Encryption Context", strconv.Itoa(int(c.Security.EncryptionContext)))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
