package metrics

import (
	"encoding/binary"
	"math"
)

// Sample is one Graphite data point: a (possibly prefixed) metric name
// paired with a Unix timestamp and value.
type Sample struct {
	Name      string
	Timestamp int64
	Value     float64
}

// Pickle protocol 2 opcodes used below. This is the minimal subset
// needed to encode a list of (str, (int, float)) tuples, the shape
// Graphite's pickle-pipeline receiver expects.
const (
	opProto     = 0x80
	opMark      = '('
	opEmptyList = ']'
	opAppends   = 'e'
	opTuple2    = 0x86
	opTuple3    = 0x87
	opBinInt    = 'J'
	opBinFloat  = 'G'
	opShortStr  = 'U'
	opStop      = '.'
)

// EncodeFrame packs samples into Graphite's pickle-pipeline wire format:
// a 4-byte big-endian length header followed by a pickle protocol-2
// encoded list of (name, (timestamp, value)) tuples.
func EncodeFrame(samples []Sample) []byte {
	payload := encodePickleList(samples)

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	return frame
}

func encodePickleList(samples []Sample) []byte {
	buf := make([]byte, 0, 64+32*len(samples))
	buf = append(buf, opProto, 2)
	buf = append(buf, opEmptyList)

	if len(samples) == 0 {
		buf = append(buf, opStop)
		return buf
	}

	buf = append(buf, opMark)
	for _, s := range samples {
		buf = appendShortString(buf, s.Name)
		buf = appendBinInt(buf, s.Timestamp)
		buf = appendBinFloat(buf, s.Value)
		buf = append(buf, opTuple2) // (timestamp, value)
		buf = append(buf, opTuple2) // (name, (timestamp, value))
	}
	buf = append(buf, opAppends)
	buf = append(buf, opStop)
	return buf
}

func appendShortString(buf []byte, s string) []byte {
	buf = append(buf, opShortStr, byte(len(s)))
	return append(buf, s...)
}

func appendBinInt(buf []byte, v int64) []byte {
	buf = append(buf, opBinInt)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendBinFloat(buf []byte, v float64) []byte {
	buf = append(buf, opBinFloat)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	return append(buf, tmp[:]...)
}
