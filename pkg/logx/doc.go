// Package logx configures heraldbot's structured logging.
//
// It wraps zerolog behind a small Logger type so that:
//   - Console output stays readable (short timestamp + short caller)
//   - File output stays JSON-structured
//   - Sinks and levels can be swapped at runtime via Service.Apply
package logx
