package echo

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/andx/cmd/util"
	"github.com/ValentinKolb/andx/rpc/client"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"time"
)

var plog = logger.GetLogger(common.LoggerCLI)

var (
	conn       *client.Connection
	connConfig *common.ClientConfig

	// EchoCommands represents the echo command group
	EchoCommands = &cobra.Command{
		Use:                "echo [message]",
		Short:              "Send an echo request and print the reply",
		Args:               cobra.MaximumNArgs(1),
		PersistentPreRunE:  setupConnection,
		PersistentPostRunE: closeConnection,
		RunE:               runEcho,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add connection flags to the echo commands
	util.SetupClientFlags(EchoCommands)

	key := "count"
	EchoCommands.Flags().Uint16(key, 1, util.WrapString("Echo count word sent with the request"))

	key = "metrics"
	EchoCommands.PersistentFlags().Bool(key, false, util.WrapString("Print the connection metrics in Prometheus format when done"))

	// Add subcommands
	EchoCommands.AddCommand(perfCmd)
}

// setupConnection opens the connection used by all echo commands
func setupConnection(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	connConfig = util.GetClientConfig()

	var err error
	conn, err = util.Connect(*connConfig)
	return err
}

// closeConnection prints the metrics if asked to and closes the connection
func closeConnection(cmd *cobra.Command, _ []string) error {
	if conn == nil {
		return nil
	}
	if viper.GetBool("metrics") {
		conn.WriteMetrics(cmd.OutOrStdout())
	}
	return conn.Close()
}

// timeout returns the per request timeout
func timeout() time.Duration {
	return time.Duration(connConfig.Transport.ConnectTimeoutSecond) * time.Second
}

// echo sends one echo request with payload and waits for the reply
func echo(ctx context.Context, count uint16, payload []byte) (*wire.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout())
	defer cancel()

	req := conn.NewRequest(wire.CmdEcho, 0, []uint16{count}, payload)
	return conn.Call(ctx, req, 1)
}

func runEcho(cmd *cobra.Command, args []string) error {
	message := "ping"
	if len(args) == 1 {
		message = args[0]
	}
	count := viper.GetUint16("count")

	start := time.Now()
	reply, err := echo(cmd.Context(), count, []byte(message))
	if err != nil {
		return fmt.Errorf("echo failed (%s): %w", common.StatusOf(err), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "reply seq=%d status=%s bytes=%d time=%s\n%s\n",
		reply.Word(0), reply.Status, len(reply.Bytes), time.Since(start), reply.Bytes)
	return nil
}
