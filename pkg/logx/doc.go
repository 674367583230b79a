// Package logx configures schedbot's structured logging.
//
// Logger is a small wrapper on top of zerolog:
//   - console output keeps a short timestamp and a file:line caller
//   - the optional file sink writes JSON lines
//   - the optional chat sink forwards WARN and above to an operator chat,
//     rate limited so a failing delivery loop cannot flood it
package logx
