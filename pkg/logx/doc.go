// Package logx configures reminderd's structured logging.
//
// A small wrapper (logx.Logger) over zerolog keeps:
//   - console output readable (short timestamp + short caller)
//   - file and json output structured
//   - level and sinks swappable at runtime via Service.Apply
package logx
