package netutil

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

// PacketConnection sends and receives whole packets upon a network stream
// connection. Each packet travels as a big-endian uint32 payload length
// followed by the payload bytes.
type PacketConnection struct {
	conn      Connection
	sendLock  sync.Mutex
	closeOnce sync.Once
}

// NewPacketConnection creates a packet connection based on a network connection
func NewPacketConnection(conn Connection) *PacketConnection {
	return &PacketConnection{conn: conn}
}

// SendPacket sends one packet to the remote and flushes the connection.
// SendPacket is safe for concurrent use.
func (pc *PacketConnection) SendPacket(packet *Packet) error {
	payloadLen := packet.GetPayloadLen()
	if payloadLen > MAX_PACKET_PAYLOAD_LEN {
		return errors.Errorf("packet payload too large: %d", payloadLen)
	}

	if consts.DEBUG_PACKETS {
		wmlog.Debugf("%s: SEND PACKET: payload=%d", pc, payloadLen)
	}

	var lenBuf [4]byte
	packetEndian.PutUint32(lenBuf[:], payloadLen)

	pc.sendLock.Lock()
	defer pc.sendLock.Unlock()

	if err := writeAll(pc.conn, lenBuf[:]); err != nil {
		return err
	}
	if err := writeAll(pc.conn, packet.Payload()); err != nil {
		return err
	}
	return errors.Wrap(pc.conn.Flush(), "flush failed")
}

// RecvPacket receives the next packet, blocking until one whole packet
// arrives or the connection fails. The returned packet must be Released.
func (pc *PacketConnection) RecvPacket() (*Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(pc.conn, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "read packet length failed")
	}

	payloadLen := packetEndian.Uint32(lenBuf[:])
	if payloadLen > MAX_PACKET_PAYLOAD_LEN {
		// malformed stream, drop the connection
		pc.Close()
		return nil, errors.Errorf("invalid packet payload length: %d", payloadLen)
	}

	packet := NewPacket()
	packet.payload = append(packet.payload, make([]byte, payloadLen)...)
	if _, err := io.ReadFull(pc.conn, packet.payload); err != nil {
		packet.Release()
		return nil, errors.Wrap(err, "read packet payload failed")
	}

	if consts.DEBUG_PACKETS {
		wmlog.Debugf("%s: RECV PACKET: payload=%d", pc, payloadLen)
	}
	return packet, nil
}

// Close the connection
func (pc *PacketConnection) Close() (err error) {
	pc.closeOnce.Do(func() {
		err = pc.conn.Close()
	})
	return
}

// RemoteAddr returns the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}

func writeAll(conn io.Writer, data []byte) error {
	left := len(data)
	for left > 0 {
		n, err := conn.Write(data)
		if n == left && err == nil {
			return nil
		}

		if n > 0 {
			data = data[n:]
			left -= n
		}

		if err != nil {
			return errors.Wrap(err, "write failed")
		}
	}
	return nil
}
