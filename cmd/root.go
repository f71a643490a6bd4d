package cmd

import (
	"fmt"
	"github.com/ValentinKolb/andx/cmd/echo"
	"github.com/ValentinKolb/andx/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "andx",
		Short: "asynchronous request multiplexer for chained SMB1 style requests",
		Long: fmt.Sprintf(`andx (v%s)

A client side request multiplexer written in Go. Many concurrent requests
share one connection, chained requests travel as one frame and replies
are matched back by transaction id in whatever order they arrive.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of andx",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("andx v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(echo.EchoCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
