// Package common provides core data structures and utilities shared across
// the client multiplexer. It defines the result status codes, the error
// taxonomy, the configuration structures and the logging setup used by the
// other packages.
//
// Key Components:
//
//   - Status: 32-bit result code as carried in a reply header. Old-style
//     DOS class/code pairs are folded into the same space via DOSStatus.
//
//   - Error / ErrorKind: every terminal request outcome that is not success.
//     Kinds are matched with errors.Is against the Err* sentinels, e.g.
//     errors.Is(err, common.ErrNetwork).
//
//   - ClientConfig: transport, header defaults, transaction id range and
//     security settings of one connection.
//
//   - Logger: custom logging implementation that plugs into Dragonboat's
//     logger package, giving every package a named logger with a
//     consistent format.
package common
