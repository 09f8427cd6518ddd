package view

import "github.com/route-beacon/bgpview/internal/peersig"

// peerStateBits is a packed array, 2 bits per peer id, big-endian within
// byte: for peer id p >= 1, byte index is (p-1)*2/8, bit offset within the
// byte is 8 - ((p-1) mod 4)*2 - 2. This layout is an implementation detail
// reachable only through get/set.
type peerStateBits []byte

func indexAndShift(p peersig.PeerId) (int, uint) {
	n := int(p - 1)
	return (n * 2) / 8, 8 - uint(n%4)*2 - 2
}

// grow extends the bitset so that peer id p has a slot, zero-filled
// (Invalid) for any newly covered ids.
func (b *peerStateBits) grow(p peersig.PeerId) {
	idx, _ := indexAndShift(p)
	for len(*b) <= idx {
		*b = append(*b, 0)
	}
}

func (b peerStateBits) get(p peersig.PeerId) FieldState {
	idx, shift := indexAndShift(p)
	if idx < 0 || idx >= len(b) {
		return Invalid
	}
	return FieldState((b[idx] >> shift) & 0b11)
}

func (b peerStateBits) set(p peersig.PeerId, st FieldState) {
	idx, shift := indexAndShift(p)
	mask := byte(0b11) << shift
	b[idx] = (b[idx] &^ mask) | (byte(st) << shift)
}
