// Package wire implements the Sensilo beacon payload codec.
//
// A beacon payload is the body of the manufacturer-specific advertising
// structure broadcast by a sensor node:
//
//	offset 0..2  burst counter (uint16, little-endian)
//	offset 2..   entries, each [1-byte type tag][4-byte int32, little-endian]
//
// Values are fixed-point integers (millidegrees Celsius, millipercent RH,
// milli-µg/m³) so that encode/decode round-trips are exact. The same codec
// is used by the node to build payloads and by the gateway to decode them.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	CounterSize = 2 // uint16 burst counter, little-endian
	TagSize     = 1 // measurement type tag
	ValueSize   = 4 // int32 value, little-endian
	EntrySize   = TagSize + ValueSize

	// MaxPayloadSize is the beacon payload budget: a 31-byte advertising
	// data unit minus the "Sensilo" local-name structure (9 bytes) and the
	// manufacturer structure overhead (length, type and 2-byte company
	// identifier, 4 bytes).
	MaxPayloadSize = 18

	// MaxEntries is how many entries fit alongside the counter.
	MaxEntries = (MaxPayloadSize - CounterSize) / EntrySize
)

// Kind identifies a measurement type on the wire.
type Kind uint8

const (
	KindUnknown           Kind = 0x00 // catch-all for tags this build does not know
	KindTemperature       Kind = 0x01 // int32 millidegrees Celsius
	KindHumidity          Kind = 0x02 // int32 millipercent relative humidity
	KindParticulateMatter Kind = 0x03 // int32 milli-µg/m³
)

func (k Kind) String() string {
	switch k {
	case KindTemperature:
		return "temperature"
	case KindHumidity:
		return "humidity"
	case KindParticulateMatter:
		return "particulate_matter"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(k))
	}
}

// Known reports whether this build can decode values of this kind.
func (k Kind) Known() bool {
	switch k {
	case KindTemperature, KindHumidity, KindParticulateMatter:
		return true
	}
	return false
}

// Entry is one typed reading inside a beacon payload.
type Entry struct {
	Kind  Kind
	Value int32
}

// Temperature builds an entry from millidegrees Celsius.
func Temperature(millidegrees int32) Entry {
	return Entry{Kind: KindTemperature, Value: millidegrees}
}

// Humidity builds an entry from millipercent relative humidity.
func Humidity(millipercent int32) Entry {
	return Entry{Kind: KindHumidity, Value: millipercent}
}

// ParticulateMatter builds an entry from milli-µg/m³.
func ParticulateMatter(milliMicrograms int32) Entry {
	return Entry{Kind: KindParticulateMatter, Value: milliMicrograms}
}

// Frame is one decoded beacon payload.
type Frame struct {
	Counter uint16
	Entries []Entry

	// Truncated is set when decoding stopped at an unknown type tag.
	// Entries decoded before the unknown tag are still present; the frame
	// is usable, not discarded. UnknownTag holds the offending tag.
	Truncated  bool
	UnknownTag uint8
}

var (
	// ErrPayloadTooLarge reports an encode whose result would exceed
	// MaxPayloadSize. The caller must drop entries and retry.
	ErrPayloadTooLarge = errors.New("wire: encoded payload exceeds advertisement budget")

	// ErrTooShort reports a payload with fewer than CounterSize bytes, or
	// a trailing tag without enough bytes left for its value.
	ErrTooShort = errors.New("wire: payload too short")
)

// EncodedSize returns the payload size for n entries.
func EncodedSize(n int) int {
	return CounterSize + n*EntrySize
}

// Encode serializes a counter and entries into a beacon payload.
func Encode(counter uint16, entries []Entry) ([]byte, error) {
	size := EncodedSize(len(entries))
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d entries need %d bytes, budget is %d",
			ErrPayloadTooLarge, len(entries), size, MaxPayloadSize)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint16(buf, counter)
	for _, e := range entries {
		buf = append(buf, byte(e.Kind))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Value))
	}
	return buf, nil
}

// Decode parses a beacon payload.
//
// An unknown type tag terminates decoding of the remaining bytes but does
// not fail the frame: entries decoded so far are returned with
// Frame.Truncated set. A truncated value (a tag with fewer than ValueSize
// bytes after it) fails with ErrTooShort.
func Decode(payload []byte) (Frame, error) {
	if len(payload) < CounterSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d for counter",
			ErrTooShort, len(payload), CounterSize)
	}
	frame := Frame{Counter: binary.LittleEndian.Uint16(payload)}
	rest := payload[CounterSize:]
	for len(rest) > 0 {
		tag := Kind(rest[0])
		if !tag.Known() {
			frame.Truncated = true
			frame.UnknownTag = uint8(tag)
			return frame, nil
		}
		if len(rest) < EntrySize {
			return Frame{}, fmt.Errorf("%w: tag 0x%02x followed by %d of %d value bytes",
				ErrTooShort, uint8(tag), len(rest)-TagSize, ValueSize)
		}
		value := int32(binary.LittleEndian.Uint32(rest[TagSize:EntrySize]))
		frame.Entries = append(frame.Entries, Entry{Kind: tag, Value: value})
		rest = rest[EntrySize:]
	}
	return frame, nil
}
