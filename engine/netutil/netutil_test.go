package netutil

import (
	"bytes"
	"net"
	"testing"
)

func TestPacketReadWrite(t *testing.T) {
	p := NewPacket()
	p.AppendVarStr("hello")
	p.AppendBool(true)
	p.AppendBool(false)
	p.AppendUint16(0xBEEF)
	p.AppendInt32(-12345)
	p.AppendInt64(-1234567890123)
	p.AppendVarBytes([]byte{1, 2, 3})

	if p.ReadVarStr() != "hello" {
		t.Errorf("wrong string")
	}
	if !p.ReadBool() || p.ReadBool() {
		t.Errorf("wrong bools")
	}
	if p.ReadUint16() != 0xBEEF {
		t.Errorf("wrong uint16")
	}
	if p.ReadInt32() != -12345 {
		t.Errorf("wrong int32")
	}
	if p.ReadInt64() != -1234567890123 {
		t.Errorf("wrong int64")
	}
	if !bytes.Equal(p.ReadVarBytes(), []byte{1, 2, 3}) {
		t.Errorf("wrong bytes")
	}
	if p.HasUnreadPayload() {
		t.Errorf("payload should be fully read")
	}
	p.Release()
}

func TestPacketConnectionSendRecv(t *testing.T) {
	c1, c2 := net.Pipe()
	pc1 := NewPacketConnection(NetConn{Conn: c1})
	pc2 := NewPacketConnection(NetConn{Conn: c2})
	defer pc1.Close()
	defer pc2.Close()

	go func() {
		p := NewPacket()
		p.AppendVarStr("ping")
		p.AppendUint32(42)
		if err := pc1.SendPacket(p); err != nil {
			t.Errorf("send failed: %v", err)
		}
		p.Release()
	}()

	recv, err := pc2.RecvPacket()
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if recv.ReadVarStr() != "ping" || recv.ReadUint32() != 42 {
		t.Errorf("wrong packet content")
	}
	recv.Release()
}
