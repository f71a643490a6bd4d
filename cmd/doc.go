// Package cmd implements the command-line interface of andx. It connects
// to a server, sends requests through the multiplexer and reports what came
// back.
//
// The package is organized into several subpackages:
//
//   - echo: Commands that send echo requests (single request, concurrent perf run)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable ANDX_<FLAG>
// (e.g. ANDX_SIGNING_KEY) or in a .env file. See andx -help for a list of
// all commands.
package cmd
