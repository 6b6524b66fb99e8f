// Package endian provides byte order utilities for the avatar wire format.
//
// This package extends Go's standard encoding/binary package by combining
// ByteOrder and AppendByteOrder interfaces into a unified EndianEngine
// interface. Every multi-byte integer in the avatar snapshot and trait
// formats is little-endian; the quantized orientation codec is the one
// exception, storing its three 16-bit words big-endian within the six-byte
// group for bit-exact compatibility with peers built from other codebases.
//
// # Basic Usage
//
//	engine := endian.GetLittleEndianEngine()
//	buf = engine.AppendUint16(buf, flags)
//
// # Thread Safety
//
// All functions and methods in this package are safe for concurrent use.
// The returned EndianEngine instances are immutable and stateless.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a single interface for convenient byte order
// operations.
//
// This interface is satisfied by binary.LittleEndian and binary.BigEndian
// from the standard library, making it fully compatible with existing Go
// code while providing access to both read/write and append operations.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine. This is the wire
// order for every integer field of the avatar formats.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine, used only by the
// six-byte orientation codec.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
