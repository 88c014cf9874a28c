// Package expr parses and evaluates model equations.
//
// Equations are written in a small infix language:
//
//	births - deaths
//	population[north] * birth_rate
//	IF_THEN_ELSE(stock > 0, outflow_rate, 0)
//	effect_of_crowding(density / normal_density)
//	DELAY3(orders, shipping_time)
//
// Identifiers are letters, digits and underscores, or any text in double
// quotes ("Population by Gender"). A call whose name is not a built-in is a
// lookup table application. Subscripts select one element of a dimension and
// drop that axis; everything else broadcasts element-wise with scalars
// expanding to the other operand's shape.
//
// Delay and smoothing calls cannot be evaluated directly: the graph lowers
// them into stateful nodes with [Rewrite] before the first evaluation.
package expr
