// Package analysis inspects recorded output series.
//
//   - [PowerSpectrum] and [DominantPeriod]: oscillation in a series
//   - [SteadyState]: when a series stops changing
//   - [Crossings]: times at which a series passes a threshold
//   - [NewPhasePortrait]: one output plotted against another
//
// Oscillation check for an inventory column:
//
//	period, ok := analysis.DominantPeriod(r.Times, inv)
//	if ok {
//	    fmt.Printf("inventory oscillates every %.1f weeks\n", period)
//	}
package analysis
