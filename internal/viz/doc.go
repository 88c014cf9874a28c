// Package viz renders runs in the terminal.
//
// [Live] is a Bubble Tea program that follows a driver as it steps: a
// progress bar, an asciigraph chart of the selected output column and the
// latest value of every column.
//
// # Key Bindings
//
//	Space   - Pause/Resume the run
//	Tab/↓   - Next column
//	Shift+Tab/↑ - Previous column
//	T       - Cycle color themes
//	Q       - Cancel the run and quit
//
// [Styles.Summary] and [Sparkline] style one-shot CLI output with the same theme.
package viz
