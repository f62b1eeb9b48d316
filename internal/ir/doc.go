// Package ir defines the wire-level values carried by intents.
//
// Intent payloads are restricted to strings, integers, booleans, arrays and
// objects. There are no floats: every replica must hash and compare payloads
// bit-for-bit, and the canonical encoding (RFC 8785) is only stable for
// integer numbers.
//
// ir imports nothing internal; every other package may import it.
package ir
