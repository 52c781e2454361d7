package engine

import "encoding/binary"

// Part is one component of a tuple key.
type Part []byte

// Str encodes a string component.
func Str(s string) Part { return Part(s) }

// Uint64 encodes an unsigned integer so that byte order matches numeric order.
func Uint64(v uint64) Part {
	return binary.BigEndian.AppendUint64(nil, v)
}

// Int64 encodes a signed integer so that byte order matches numeric order.
func Int64(v int64) Part {
	return Uint64(uint64(v) ^ (1 << 63))
}

// OptUint64 encodes an optional unsigned integer. Absent values sort before every present value.
func OptUint64(v *uint64) Part {
	if v == nil {
		return Part{0}
	}
	return append(Part{1}, Uint64(*v)...)
}

// Tuple encodes parts into an order-preserving key. Each part is escaped (0x00 becomes 0x00 0xff)
// and terminated by 0x00 0x01, so the encoding of a shorter tuple is a byte prefix of every tuple
// that extends it, and tuples compare component by component.
func Tuple(parts ...Part) []byte {
	size := 0
	for _, p := range parts {
		size += len(p) + 2
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = appendPart(out, p)
	}
	return out
}

func appendPart(dst []byte, p Part) []byte {
	for _, b := range p {
		if b == 0x00 {
			dst = append(dst, 0x00, 0xff)
			continue
		}
		dst = append(dst, b)
	}
	return append(dst, 0x00, 0x01)
}

// Concat joins already-encoded tuples.
func Concat(tuples ...[]byte) []byte {
	size := 0
	for _, t := range tuples {
		size += len(t)
	}
	out := make([]byte, 0, size)
	for _, t := range tuples {
		out = append(out, t...)
	}
	return out
}

// keyspaces
const (
	spaceRecord   = "r"
	spaceIndex    = "i"
	spaceIndexRef = "x"
	spaceSequence = "s"
	spaceMeta     = "m"
)

func recordPrefix(table string) []byte {
	return Tuple(Str(spaceRecord), Str(table))
}

func indexPrefix(table, index string) []byte {
	return Tuple(Str(spaceIndex), Str(table), Str(index))
}

func indexRefKey(table string, pk []byte) []byte {
	return Concat(Tuple(Str(spaceIndexRef), Str(table)), pk)
}

func sequenceKey(table string) []byte {
	return Tuple(Str(spaceSequence), Str(table))
}

func metaKey(name string) []byte {
	return Tuple(Str(spaceMeta), Str(name))
}
