// Package param implements typed parameter values and their tagged-union
// wire encoding.
//
// Remote nodes expose parameters through get/set/list services. On the wire
// a parameter value is a record with a type discriminator and one populated
// value field (the rcl ParameterValue shape). This package keeps the two
// worlds apart:
//   - Value is a proper sum type with exactly one active variant
//   - Wire is the flattened record exchanged with the gateway
//
// The codec preserves declared numeric types: re-encoding a value that was
// read as an integer stays an integer even when the replacement looks like
// "3.0". Values with no known original type encode numbers as doubles,
// never integers, so fractional intent is never truncated.
package param
