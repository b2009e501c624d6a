package netutil

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

const (
	_MIN_PAYLOAD_CAP = 128

	// MAX_PACKET_PAYLOAD_LEN is the max payload length of a single packet
	MAX_PACKET_PAYLOAD_LEN = 1 * 1024 * 1024
)

// packetEndian is big-endian: strings and integers go over the wire the way
// the proxy forwarding channel writes them
var packetEndian = binary.BigEndian

var packetPool = sync.Pool{
	New: func() interface{} {
		return &Packet{
			payload: make([]byte, 0, _MIN_PAYLOAD_CAP),
		}
	},
}

// Packet is a length-prefixed binary payload for sending and receiving
// messages. Append* methods write to the end of the payload, Read* methods
// consume from the read cursor. Read* methods panic on underflow, so callers
// decoding untrusted payloads guard with UnreadPayloadLen or RunPanicless.
type Packet struct {
	readCursor uint32
	refcount   int64
	payload    []byte
}

func allocPacket() *Packet {
	pkt := packetPool.Get().(*Packet)
	pkt.refcount = 1

	if len(pkt.payload) != 0 || pkt.readCursor != 0 {
		wmlog.Panicf("allocPacket: payload should be empty, but is %d, readCursor %d", len(pkt.payload), pkt.readCursor)
	}
	return pkt
}

// NewPacket allocates a new packet from the pool
func NewPacket() *Packet {
	return allocPacket()
}

// AddRefCount adds reference count of packet
func (p *Packet) AddRefCount(add int64) {
	atomic.AddInt64(&p.refcount, add)
}

// Release releases the packet to the pool
func (p *Packet) Release() {
	refcount := atomic.AddInt64(&p.refcount, -1)
	if refcount == 0 {
		p.readCursor = 0
		p.payload = p.payload[:0]
		packetPool.Put(p)
	} else if refcount < 0 {
		wmlog.Panicf("releasing packet with refcount=%d", p.refcount)
	}
}

// Payload returns the total payload of packet
func (p *Packet) Payload() []byte {
	return p.payload
}

// GetPayloadLen returns the payload length
func (p *Packet) GetPayloadLen() uint32 {
	return uint32(len(p.payload))
}

// UnreadPayload returns the unread part of the payload
func (p *Packet) UnreadPayload() []byte {
	return p.payload[p.readCursor:]
}

// UnreadPayloadLen returns the number of unread payload bytes
func (p *Packet) UnreadPayloadLen() uint32 {
	return uint32(len(p.payload)) - p.readCursor
}

// HasUnreadPayload returns if there is unread payload
func (p *Packet) HasUnreadPayload() bool {
	return p.readCursor < uint32(len(p.payload))
}

// ClearPayload clears packet payload
func (p *Packet) ClearPayload() {
	p.readCursor = 0
	p.payload = p.payload[:0]
}

// AppendByte appends one byte to the end of payload
func (p *Packet) AppendByte(b byte) {
	p.payload = append(p.payload, b)
}

// ReadOneByte reads one byte from the read cursor
func (p *Packet) ReadOneByte() (v byte) {
	v = p.payload[p.readCursor]
	p.readCursor++
	return
}

// AppendBool appends one byte 1/0 to the end of payload
func (p *Packet) AppendBool(b bool) {
	if b {
		p.AppendByte(1)
	} else {
		p.AppendByte(0)
	}
}

// ReadBool reads one byte 1/0 from the read cursor
func (p *Packet) ReadBool() (v bool) {
	return p.ReadOneByte() != 0
}

// AppendUint16 appends one uint16 to the end of payload
func (p *Packet) AppendUint16(v uint16) {
	var b [2]byte
	packetEndian.PutUint16(b[:], v)
	p.payload = append(p.payload, b[:]...)
}

// ReadUint16 reads one uint16 from the read cursor
func (p *Packet) ReadUint16() (v uint16) {
	v = packetEndian.Uint16(p.payload[p.readCursor : p.readCursor+2])
	p.readCursor += 2
	return
}

// AppendUint32 appends one uint32 to the end of payload
func (p *Packet) AppendUint32(v uint32) {
	var b [4]byte
	packetEndian.PutUint32(b[:], v)
	p.payload = append(p.payload, b[:]...)
}

// ReadUint32 reads one uint32 from the read cursor
func (p *Packet) ReadUint32() (v uint32) {
	v = packetEndian.Uint32(p.payload[p.readCursor : p.readCursor+4])
	p.readCursor += 4
	return
}

// AppendUint64 appends one uint64 to the end of payload
func (p *Packet) AppendUint64(v uint64) {
	var b [8]byte
	packetEndian.PutUint64(b[:], v)
	p.payload = append(p.payload, b[:]...)
}

// ReadUint64 reads one uint64 from the read cursor
func (p *Packet) ReadUint64() (v uint64) {
	v = packetEndian.Uint64(p.payload[p.readCursor : p.readCursor+8])
	p.readCursor += 8
	return
}

// AppendInt32 appends one int32 to the end of payload
func (p *Packet) AppendInt32(v int32) {
	p.AppendUint32(uint32(v))
}

// ReadInt32 reads one int32 from the read cursor
func (p *Packet) ReadInt32() int32 {
	return int32(p.ReadUint32())
}

// AppendInt64 appends one int64 to the end of payload
func (p *Packet) AppendInt64(v int64) {
	p.AppendUint64(uint64(v))
}

// ReadInt64 reads one int64 from the read cursor
func (p *Packet) ReadInt64() int64 {
	return int64(p.ReadUint64())
}

// AppendBytes appends a slice of bytes to the end of payload
func (p *Packet) AppendBytes(v []byte) {
	p.payload = append(p.payload, v...)
}

// ReadBytes reads bytes from the read cursor
func (p *Packet) ReadBytes(size uint32) []byte {
	if p.readCursor+size > uint32(len(p.payload)) {
		wmlog.Panicf("Packet %p payload is %d, but reading %d+%d", p, len(p.payload), p.readCursor, size)
	}

	b := p.payload[p.readCursor : p.readCursor+size] // not copied
	p.readCursor += size
	return b
}

// AppendVarStr appends a string to the end of payload, prefixed by its
// uint16 byte length
func (p *Packet) AppendVarStr(s string) {
	p.AppendVarBytes([]byte(s))
}

// AppendVarBytes appends length-prefixed bytes to the end of payload
func (p *Packet) AppendVarBytes(v []byte) {
	if len(v) > 0xFFFF {
		wmlog.Panicf("AppendVarBytes: too long: %d", len(v))
	}
	p.AppendUint16(uint16(len(v)))
	p.AppendBytes(v)
}

// ReadVarStr reads a length-prefixed string from the read cursor
func (p *Packet) ReadVarStr() string {
	return string(p.ReadVarBytes())
}

// ReadVarBytes reads length-prefixed bytes from the read cursor
func (p *Packet) ReadVarBytes() []byte {
	blen := p.ReadUint16()
	return p.ReadBytes(uint32(blen))
}
