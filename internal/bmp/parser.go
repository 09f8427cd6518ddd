package bmp

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Parse parses a complete BMP message from raw bytes.
func Parse(data []byte) (*ParsedBMP, error) {
	if len(data) < CommonHeaderSize {
		return nil, fmt.Errorf("bmp: message too short for common header (%d bytes)", len(data))
	}

	version := data[0]
	if version != BMPVersion {
		return nil, fmt.Errorf("bmp: unsupported version %d (expected %d)", version, BMPVersion)
	}

	msgLength := binary.BigEndian.Uint32(data[1:5])
	msgType := data[5]

	if msgLength < uint32(CommonHeaderSize) {
		return nil, fmt.Errorf("bmp: declared msg_length %d smaller than common header size %d", msgLength, CommonHeaderSize)
	}
	if int(msgLength) > len(data) {
		return nil, fmt.Errorf("bmp: declared msg_length %d exceeds available data %d", msgLength, len(data))
	}

	result := &ParsedBMP{
		MsgType:   msgType,
		TableName: "UNKNOWN",
	}

	switch msgType {
	case MsgTypeRouteMonitoring:
		return parseRouteMonitoring(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerDown:
		return parsePeerDown(data[CommonHeaderSize:msgLength], result)
	case MsgTypeTermination:
		result.MsgType = MsgTypeTermination
		return result, nil
	default:
		// Skip other message types.
		return result, nil
	}
}

// ParseAll parses consecutive BMP messages packed into data, recording each
// message's byte offset. Messages that fail to parse are skipped; parsing
// stops at trailing bytes too short to hold a whole message. It returns an
// error only when no message parses.
func ParseAll(data []byte) ([]*ParsedBMP, error) {
	var results []*ParsedBMP
	for off := 0; off+CommonHeaderSize <= len(data); {
		n := int(binary.BigEndian.Uint32(data[off+1 : off+5]))
		if n < CommonHeaderSize || off+n > len(data) {
			break
		}
		if p, err := Parse(data[off : off+n]); err == nil {
			p.Offset = off
			results = append(results, p)
		}
		off += n
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("bmp: no valid messages in %d bytes", len(data))
	}
	return results, nil
}

func parseRouteMonitoring(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < 42 {
		return nil, fmt.Errorf("bmp: route monitoring too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.PeerFlags = data[1]
	result.IsLocRIB = result.PeerType == PeerTypeLocRIB
	result.HasAddPath = (result.PeerFlags & PeerFlagAddPath) != 0
	result.PeerHeader = data[:PerPeerHeaderSize]

	// After per-peer header (42 bytes), the BGP message follows.
	// But for Loc-RIB, we need to extract the BGP UPDATE first, then parse TLVs after.
	bgpStart := 42

	if bgpStart >= len(data) {
		return nil, fmt.Errorf("bmp: no data after per-peer header")
	}

	// Parse the BGP message to find its end.
	bgpData := data[bgpStart:]

	if result.IsLocRIB {
		// For Loc-RIB (RFC 9069), the structure is:
		// per-peer header (42) + BGP UPDATE + TLVs
		// We need to parse the BGP message header to find its length,
		// then parse TLVs after.
		bgpMsgLen, err := bgpMessageLength(bgpData)
		if err != nil {
			// If we can't parse BGP header, treat all remaining as BGP data.
			result.BGPData = bgpData
			return result, nil
		}

		if bgpMsgLen > len(bgpData) {
			result.BGPData = bgpData
			return result, nil
		}

		result.BGPData = bgpData[:bgpMsgLen]

		// Parse TLVs after BGP message for table name.
		tlvData := bgpData[bgpMsgLen:]
		parseTLVs(tlvData, result)
	} else {
		result.BGPData = bgpData
	}

	return result, nil
}

func parsePeerDown(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < 42 {
		return nil, fmt.Errorf("bmp: peer down too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.IsLocRIB = result.PeerType == PeerTypeLocRIB
	result.PeerHeader = data[:PerPeerHeaderSize]
	if len(data) > PerPeerHeaderSize {
		result.PeerDownReason = data[PerPeerHeaderSize]
		// A Loc-RIB peer down (RFC 9069) carries TLVs after the reason code.
		if result.IsLocRIB {
			parseTLVs(data[PerPeerHeaderSize+1:], result)
		}
	}

	return result, nil
}

// bgpMessageLength reads the length field from a BGP message header.
// BGP header: marker(16) + length(2) + type(1) = 19 bytes minimum.
func bgpMessageLength(data []byte) (int, error) {
	if len(data) < 19 {
		return 0, fmt.Errorf("bmp: bgp message too short (%d bytes)", len(data))
	}
	// Length is at offset 16-17 (after the 16-byte marker).
	length := int(binary.BigEndian.Uint16(data[16:18]))
	if length < 19 {
		return 0, fmt.Errorf("bmp: invalid bgp message length %d", length)
	}
	return length, nil
}

// parseTLVs extracts Table Name and other TLVs from data following the BGP message.
func parseTLVs(data []byte, result *ParsedBMP) {
	offset := 0
	for offset+4 <= len(data) {
		tlvType := binary.BigEndian.Uint16(data[offset : offset+2])
		tlvLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+tlvLen > len(data) {
			break
		}

		if tlvType == TLVTypeTableName && tlvLen > 0 {
			result.TableName = string(data[offset : offset+tlvLen])
		}

		offset += tlvLen
	}
}

// RouterIDFromPeerHeader extracts the peer address from a per-peer header for
// logging. When the address is all zeros (as in a Loc-RIB header, RFC 9069)
// it returns the Peer BGP ID at offset 30 instead, and "" if that is zero too.
func RouterIDFromPeerHeader(data []byte) string {
	addr, ok := PeerAddr(data)
	if !ok {
		return ""
	}
	if addr.IsUnspecified() {
		id := netip.AddrFrom4([4]byte(data[30:34]))
		if id.IsUnspecified() {
			return ""
		}
		return id.String()
	}
	return addr.String()
}

// PeerAddr and PeerASN are the per-peer header fields a record source
// needs to identify the session an update belongs to: peer_address at
// offset 10 (16 bytes), peer_as at offset 26 (4 bytes), following the
// distinguisher at offset 2 (PerPeerHeaderSize accounts for all of it).
// An IPv4 peer address is 12 zero bytes followed by the 4 address bytes.
func PeerAddr(data []byte) (netip.Addr, bool) {
	if len(data) < PerPeerHeaderSize {
		return netip.Addr{}, false
	}
	addr := data[10:26]
	if [12]byte(addr[:12]) == ([12]byte{}) {
		return netip.AddrFrom4([4]byte(addr[12:16])), true
	}
	a, ok := netip.AddrFromSlice(addr)
	return a.Unmap(), ok
}

// PeerASN extracts the 4-byte peer_as field from a per-peer header.
func PeerASN(data []byte) (uint32, bool) {
	if len(data) < PerPeerHeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(data[26:30]), true
}
