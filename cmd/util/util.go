package util

import (
	"fmt"
	"github.com/ValentinKolb/andx/rpc/client"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/security"
	"github.com/ValentinKolb/andx/rpc/transport"
	"github.com/ValentinKolb/andx/rpc/transport/tcp"
	"github.com/ValentinKolb/andx/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	def := common.DefaultClientConfig()

	key := "timeout"
	cmd.PersistentFlags().Int(key, def.Transport.ConnectTimeoutSecond, WrapString("The timeout in seconds for connecting and for each request"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:445", WrapString("The address of the server (host:port for tcp, a socket path for unix)"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, def.Transport.RetryCount, WrapString("How many times to retry connecting"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-max-frame"
	cmd.PersistentFlags().Int(key, def.Transport.MaxFrameSize/1024, WrapString("The largest frame accepted from the server (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, def.Transport.TCPConf.TCPNoDelay, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp)"))

	key = "pid"
	cmd.PersistentFlags().Uint16(key, def.Header.Pid, WrapString("Process id placed in every request header"))

	key = "uid"
	cmd.PersistentFlags().Uint16(key, def.Header.Uid, WrapString("User id placed in every request header"))

	key = "tid"
	cmd.PersistentFlags().Uint16(key, def.Header.Tid, WrapString("Tree id placed in every request header"))

	key = "mid-min"
	cmd.PersistentFlags().Uint16(key, def.MinMid, WrapString("Lowest transaction id handed out to requests"))

	key = "mid-max"
	cmd.PersistentFlags().Uint16(key, def.MaxMid, WrapString("Highest transaction id handed out to requests (at most 65534)"))

	key = "signing-key"
	cmd.PersistentFlags().String(key, "", WrapString("Session key for message signing. Signing is enabled when set"))

	key = "encryption-key"
	cmd.PersistentFlags().String(key, "", WrapString("Session key for frame encryption. Encryption is enabled when set"))

	key = "encryption-context"
	cmd.PersistentFlags().Uint16(key, 1, WrapString("Encryption context id expected in encrypted frames"))

	key = "log-level"
	cmd.PersistentFlags().String(key, def.LogLevel, WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("andx")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := common.DefaultClientConfig()

	conf.Transport = common.ClientTransportConfig{
		Endpoint:             viper.GetString("endpoint"),
		RetryCount:           viper.GetInt("transport-retries"),
		ConnectTimeoutSecond: viper.GetInt("timeout"),
		MaxFrameSize:         viper.GetInt("transport-max-frame") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		},
	}

	conf.Header.Pid = viper.GetUint16("pid")
	conf.Header.Uid = viper.GetUint16("uid")
	conf.Header.Tid = viper.GetUint16("tid")
	conf.MinMid = viper.GetUint16("mid-min")
	conf.MaxMid = viper.GetUint16("mid-max")

	if key := viper.GetString("signing-key"); key != "" {
		conf.Security.SigningEnabled = true
		conf.Security.SigningKey = []byte(key)
	}
	if key := viper.GetString("encryption-key"); key != "" {
		conf.Security.EncryptionEnabled = true
		conf.Security.EncryptionKey = []byte(key)
		conf.Security.EncryptionContext = viper.GetUint16("encryption-context")
	}

	conf.LogLevel = viper.GetString("log-level")

	return &conf
}

// Dial connects to the configured endpoint with the transport selected by
// the transport flag
func Dial(config common.ClientConfig) (transport.IFrameTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.Dial(config)
	case "unix":
		return unix.Dial(config)
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetConnectionOptions creates the signer and encryptor the configuration asks for
func GetConnectionOptions(config common.ClientConfig) ([]client.Option, error) {
	var opts []client.Option

	if config.Security.SigningEnabled {
		s, err := security.NewBlake3Signer(config.Security.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create signer: %w", err)
		}
		opts = append(opts, client.WithSigner(s))
	}

	if config.Security.EncryptionEnabled {
		e, err := security.NewXChaChaEncryptor(config.Security.EncryptionKey, config.Security.EncryptionContext)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		opts = append(opts, client.WithEncryptor(e))
	}

	return opts, nil
}

// Connect validates the configuration, sets up logging and opens a connection
func Connect(config common.ClientConfig) (*client.Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}

	opts, err := GetConnectionOptions(config)
	if err != nil {
		return nil, err
	}

	t, err := Dial(config)
	if err != nil {
		return nil, err
	}

	return client.NewConnection(t, config, opts...), nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
