package bmp

import (
	"encoding/binary"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpview/internal/routingtables"
)

func buildOpenBMPFrame(payload []byte) []byte {
	frame := make([]byte, 10+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], 2)
	binary.BigEndian.PutUint32(frame[2:6], 0)
	binary.BigEndian.PutUint32(frame[6:10], uint32(len(payload)))
	copy(frame[10:], payload)
	return frame
}

func buildPerPeerHeader(peerIP [4]byte, peerASN uint32) []byte {
	h := make([]byte, 42)
	// peer_type(1) + peer_flags(1) + distinguisher(8) at [0:10]
	copy(h[22:26], peerIP[:]) // peer_address [10:26]: IPv4 in its last 4 bytes
	binary.BigEndian.PutUint32(h[26:30], peerASN)
	return h
}

func buildBGPUpdate(nlri, withdrawn []byte, pathAttrs []byte) []byte {
	bodyLen := 2 + len(withdrawn) + 2 + len(pathAttrs) + len(nlri)
	totalLen := 19 + bodyLen
	msg := make([]byte, totalLen)
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(totalLen))
	msg[18] = 2
	offset := 19
	binary.BigEndian.PutUint16(msg[offset:offset+2], uint16(len(withdrawn)))
	offset += 2
	copy(msg[offset:], withdrawn)
	offset += len(withdrawn)
	binary.BigEndian.PutUint16(msg[offset:offset+2], uint16(len(pathAttrs)))
	offset += 2
	copy(msg[offset:], pathAttrs)
	offset += len(pathAttrs)
	copy(msg[offset:], nlri)
	return msg
}

func buildPathAttr(flags, typeCode byte, data []byte) []byte {
	attr := make([]byte, 3+len(data))
	attr[0] = flags
	attr[1] = typeCode
	attr[2] = byte(len(data))
	copy(attr[3:], data)
	return attr
}

func buildASPathAttr(asns ...uint32) []byte {
	data := make([]byte, 2+4*len(asns))
	data[0] = 2 // SEQUENCE
	data[1] = byte(len(asns))
	for i, asn := range asns {
		binary.BigEndian.PutUint32(data[2+4*i:], asn)
	}
	return buildPathAttr(0x40, 2, data) // AttrTypeASPath
}

func buildBMPRouteMonitoring(peerHeader, bgpUpdate []byte) []byte {
	body := append(append([]byte{}, peerHeader...), bgpUpdate...)
	msg := make([]byte, 6+len(body))
	msg[0] = 3 // BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(len(msg)))
	msg[5] = 0 // MsgTypeRouteMonitoring
	copy(msg[6:], body)
	return msg
}

func TestDecodeRouteMonitoringProducesAnnouncement(t *testing.T) {
	nlri := []byte{24, 198, 51, 100} // 198.51.100.0/24
	origin := buildPathAttr(0x40, 1, []byte{0})
	nexthop := buildPathAttr(0x40, 3, []byte{192, 0, 2, 1})
	aspath := buildASPathAttr(65001, 65010)
	attrs := append(append(origin, nexthop...), aspath...)

	update := buildBGPUpdate(nlri, nil, attrs)
	peerHeader := buildPerPeerHeader([4]byte{192, 0, 2, 254}, 65001)
	bmpMsg := buildBMPRouteMonitoring(peerHeader, update)
	frame := buildOpenBMPFrame(bmpMsg)

	s := &Source{logger: zap.NewNop(), maxPayloadBytes: 1 << 20}
	rec, ok, err := s.decode(&kgo.Record{Topic: "rrc00-raw", Value: frame})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok {
		t.Fatal("expected a decoded record")
	}
	if rec.Collector != "rrc00-raw" {
		t.Errorf("collector = %q, want rrc00-raw", rec.Collector)
	}
	if rec.Type != routingtables.RecordTypeUpdate {
		t.Errorf("type = %v, want RecordTypeUpdate", rec.Type)
	}
	if len(rec.Elems) != 1 {
		t.Fatalf("expected 1 elem, got %d", len(rec.Elems))
	}
	elem := rec.Elems[0]
	if elem.Kind != routingtables.ElemAnnouncement {
		t.Errorf("kind = %v, want ElemAnnouncement", elem.Kind)
	}
	if elem.Pfx.String() != "198.51.100.0/24" {
		t.Errorf("pfx = %v, want 198.51.100.0/24", elem.Pfx)
	}
	sig, ok := rec.PeerSigs[elem.PeerID]
	if !ok {
		t.Fatalf("no PeerSig for peer id %d", elem.PeerID)
	}
	if sig.PeerASN != 65001 {
		t.Errorf("peer ASN = %d, want 65001", sig.PeerASN)
	}
	if len(elem.Path) != 1 || len(elem.Path[0].ASNs) != 2 || elem.Path[0].ASNs[0] != 65001 {
		t.Errorf("unexpected path: %+v", elem.Path)
	}
}

func TestDecodeNonRouteMonitoringYieldsNoRecord(t *testing.T) {
	msg := make([]byte, 6)
	msg[0] = 3
	binary.BigEndian.PutUint32(msg[1:5], 6)
	msg[5] = 4 // MsgTypeInitiation
	frame := buildOpenBMPFrame(msg)

	s := &Source{logger: zap.NewNop(), maxPayloadBytes: 1 << 20}
	_, ok, err := s.decode(&kgo.Record{Topic: "t", Value: frame})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok {
		t.Fatal("expected no record for a non route-monitoring message")
	}
}
