package a0

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// packetIDSize is the fixed id region: a 36-character UUIDv4 string plus
// its NUL terminator.
const packetIDSize = 37

// DepsHeaderKey is the reserved, repeatable header key packet producers
// use to declare causal dependencies on other packets' ids.
const DepsHeaderKey = "a0_deps"

// Header is a single key/value pair. A Packet's headers are an ordered
// multiset: the same key may repeat (notably DepsHeaderKey) and order is
// preserved across Serialize/Deserialize.
type Header struct {
	Key   string
	Value string
}

// Packet is the unit of data moved through a Transport: an id, an ordered
// list of headers, and an opaque payload.
type Packet struct {
	ID      string
	Headers []Header
	Payload []byte
}

// Stats summarizes a Packet's shape without serializing it.
type Stats struct {
	NumHeaders  int
	ContentSize int // sum of header key/value bytes plus payload bytes
	SerialSize  int // total bytes Serialize would produce
}

// Init assigns a fresh UUIDv4 id to p. Callers must not set ID themselves.
func Init(p *Packet) error {
	if p.ID != "" {
		return newErr("Init", CodeInvalidPacket, "id must not be pre-populated; Init generates it")
	}
	p.ID = uuid.New().String()
	return nil
}

// ForEachHeader calls cb once per header, in order.
func (p *Packet) ForEachHeader(cb func(Header)) {
	for _, h := range p.Headers {
		cb(h)
	}
}

// Stats computes p's size statistics.
func (p *Packet) Stats() Stats {
	content := len(p.Payload)
	for _, h := range p.Headers {
		content += len(h.Key) + len(h.Value)
	}
	return Stats{
		NumHeaders:  len(p.Headers),
		ContentSize: content,
		SerialSize:  p.serialSize(),
	}
}

func align8(n int) int { return (n + 7) &^ 7 }

func (p *Packet) serialSize() int {
	headerTableStart := align8(packetIDSize)
	n := len(p.Headers)
	tableBytes := 8 + (2*n+1)*8
	contentStart := headerTableStart + tableBytes

	content := 0
	for _, h := range p.Headers {
		content += len(h.Key) + 1 + len(h.Value) + 1
	}
	return contentStart + content + len(p.Payload)
}

// Allocator supplies the backing buffer for Serialize, Deserialize and
// DeepCopy, so callers can route packet bytes through a pooled or
// arena-backed buffer instead of a fresh heap allocation.
type Allocator func(size int) ([]byte, error)

// DefaultAllocator allocates a plain heap buffer.
func DefaultAllocator(size int) ([]byte, error) { return make([]byte, size), nil }

// Serialize encodes p into a single self-describing buffer: a fixed id
// region, an offset table, then the concatenated NUL-terminated header
// key/value strings, then the payload.
func Serialize(p *Packet, alloc Allocator) ([]byte, error) {
	if p.ID == "" || len(p.ID) >= packetIDSize {
		return nil, newErr("Serialize", CodeInvalidPacket, "packet has no valid id; call Init first")
	}

	size := p.serialSize()
	buf, err := alloc(size)
	if err != nil {
		return nil, wrapErr("Serialize", CodeInvalidPacket, err)
	}
	if len(buf) != size {
		return nil, newErr("Serialize", CodeInvalidPacket, "allocator returned a buffer of the wrong size")
	}

	copy(buf, p.ID)
	buf[len(p.ID)] = 0

	headerTableStart := align8(packetIDSize)
	n := len(p.Headers)
	binary.LittleEndian.PutUint64(buf[headerTableStart:], uint64(n))

	offsetsStart := headerTableStart + 8
	contentStart := offsetsStart + (2*n+1)*8

	cursor := contentStart
	for i, h := range p.Headers {
		keyOff := cursor
		cursor += copy(buf[cursor:], h.Key)
		buf[cursor] = 0
		cursor++

		valOff := cursor
		cursor += copy(buf[cursor:], h.Value)
		buf[cursor] = 0
		cursor++

		binary.LittleEndian.PutUint64(buf[offsetsStart+16*i:], uint64(keyOff))
		binary.LittleEndian.PutUint64(buf[offsetsStart+16*i+8:], uint64(valOff))
	}

	payloadOff := cursor
	binary.LittleEndian.PutUint64(buf[offsetsStart+16*n:], uint64(payloadOff))
	copy(buf[payloadOff:], p.Payload)

	return buf, nil
}

func readCString(buf []byte, off int) (string, error) {
	end := off
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end == len(buf) {
		return "", newErr("Deserialize", CodeInvalidPacket, "string is not NUL-terminated within buffer")
	}
	return string(buf[off:end]), nil
}

// Deserialize parses buf (as produced by Serialize) into a Packet whose
// Payload aliases buf directly; header keys and values are copied into Go
// strings. alloc is unused; it exists for symmetry with Serialize and
// DeepCopy.
func Deserialize(buf []byte, alloc Allocator) (*Packet, error) {
	if len(buf) < packetIDSize {
		return nil, newErr("Deserialize", CodeInvalidPacket, "buffer too small for id")
	}
	id, err := readCString(buf, 0)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, newErr("Deserialize", CodeInvalidPacket, "missing id")
	}

	headerTableStart := align8(packetIDSize)
	if headerTableStart+8 > len(buf) {
		return nil, newErr("Deserialize", CodeInvalidPacket, "buffer too small for header count")
	}
	n := int(binary.LittleEndian.Uint64(buf[headerTableStart:]))
	if n < 0 {
		return nil, newErr("Deserialize", CodeInvalidPacket, "negative header count")
	}

	offsetsStart := headerTableStart + 8
	tableEnd := offsetsStart + (2*n+1)*8
	if tableEnd > len(buf) {
		return nil, newErr("Deserialize", CodeInvalidPacket, "offset table exceeds buffer")
	}

	headers := make([]Header, 0, n)
	prevOff := tableEnd
	for i := 0; i < n; i++ {
		keyOff := int(binary.LittleEndian.Uint64(buf[offsetsStart+16*i:]))
		valOff := int(binary.LittleEndian.Uint64(buf[offsetsStart+16*i+8:]))
		if keyOff < prevOff || valOff < keyOff || valOff > len(buf) || keyOff > len(buf) {
			return nil, newErr("Deserialize", CodeInvalidPacket, "header offsets out of range or decreasing")
		}
		key, err := readCString(buf, keyOff)
		if err != nil {
			return nil, err
		}
		val, err := readCString(buf, valOff)
		if err != nil {
			return nil, err
		}
		headers = append(headers, Header{Key: key, Value: val})
		prevOff = valOff
	}

	payloadOffIdx := offsetsStart + 16*n
	payloadOff := int(binary.LittleEndian.Uint64(buf[payloadOffIdx:]))
	if payloadOff < prevOff || payloadOff > len(buf) {
		return nil, newErr("Deserialize", CodeInvalidPacket, "payload offset out of range")
	}

	return &Packet{ID: id, Headers: headers, Payload: buf[payloadOff:]}, nil
}

// DeepCopy serializes p through alloc and immediately deserializes the
// result, producing a Packet wholly independent of p's original storage.
func DeepCopy(p *Packet, alloc Allocator) (*Packet, error) {
	raw, err := Serialize(p, alloc)
	if err != nil {
		return nil, err
	}
	return Deserialize(raw, alloc)
}
