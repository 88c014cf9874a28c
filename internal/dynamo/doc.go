// Package dynamo provides core simulation primitives for stock-and-flow models.
//
// The package defines the fundamental types shared by the engine:
//
//   - [Dimension] and [Shape]: named subscript axes and dimension signatures
//   - [Array]: labeled multi-dimensional values with scalar broadcasting
//   - [State]: flat vector of integrated quantities (stocks and delay levels)
//   - [System]: interface for derivative evaluation (dX/dt = f(X, t))
//   - [Integrator]: fixed-step numerical integrator interface
//   - [RunConfig]: start/stop/step/save parameters of a run
//
// Errors raised anywhere in the engine are declared in errors.go so callers
// can match them with errors.Is and errors.As regardless of the package that
// produced them.
//
// # Example
//
//	region := dynamo.NewDimension("region", "north", "south")
//	a := dynamo.Fill(dynamo.Shape{region}, 10)
//	b, err := dynamo.Binary(a, dynamo.Scalar(2), func(x, y float64) float64 { return x * y })
//
// # Thread Safety
//
// Arrays are plain values; concurrent readers are safe, writers must own the
// backing slice. [ParallelFor] is the only concurrency helper in the package.
package dynamo
