// Package routingtables implements the per-collector RIB reconstruction
// engine: it consumes a stream of Records (RIB dumps and UPDATE messages)
// and applies them to a view.View, reconciling overlapping RIB dumps with
// live updates under partial-failure conditions.
package routingtables

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
)

// DumpPosition marks where a record sits within a RIB dump sequence.
type DumpPosition uint8

const (
	DumpMiddle DumpPosition = iota
	DumpStart
	DumpEnd
)

// RecordType distinguishes a RIB-dump record from a live UPDATE record.
type RecordType uint8

const (
	RecordTypeRib RecordType = iota
	RecordTypeUpdate
)

// RecordStatus classifies a record for dispatch purposes.
type RecordStatus uint8

const (
	StatusValidRecord RecordStatus = iota
	StatusCorruptedRecord
	StatusCorruptedSource
	StatusFilteredSource
	StatusEmptySource
	StatusOutsideTimeInterval
)

// ElemKind discriminates the variants of Elem.
type ElemKind uint8

const (
	ElemRib ElemKind = iota
	ElemAnnouncement
	ElemWithdrawal
	ElemPeerState
)

// Elem is one routing event within a Record. Exactly the fields relevant
// to Kind are populated; the others are zero.
type Elem struct {
	Kind ElemKind `json:"kind"`

	Pfx    netip.Prefix `json:"pfx,omitzero"`   // Rib, Announcement, Withdrawal
	PeerID uint16       `json:"peer_id"`        // raw peer identity before interning — see Record.PeerSigs
	Path   aspath.Path  `json:"path,omitempty"` // Rib, Announcement

	NewFSMState FSMState `json:"new_fsm_state,omitempty"` // PeerState only
}

// Record is one unit of the BGP collector stream: a RIB-dump fragment or a
// batch of live UPDATE-derived elements, all sharing one collector/time
// stamp. Its JSON shape is the wire format `internal/recordsource/jsonl`
// and `internal/recordsource/kafka` both decode.
type Record struct {
	Project      string       `json:"project,omitempty"`
	Collector    string       `json:"collector"`
	TimeSec      uint32       `json:"time_sec"`
	DumpTimeSec  uint32       `json:"dump_time_sec,omitempty"`
	DumpPosition DumpPosition `json:"dump_position,omitempty"`
	Type         RecordType   `json:"type"`
	Status       RecordStatus `json:"status"`

	// PeerSigs maps the record-local PeerID used by Elems to the full
	// peer signature, so the engine can intern it into the shared
	// PeerSignatureMap without the record source needing to know about
	// interning at all.
	PeerSigs map[uint16]PeerSig `json:"peer_sigs,omitempty"`

	Elems []Elem `json:"elems,omitempty"`
}

// PeerSig is the wire-level identification of a BGP neighbor session,
// prior to interning into a peersig.PeerId.
type PeerSig struct {
	PeerIP  netip.Addr `json:"peer_ip"`
	PeerASN uint32     `json:"peer_asn"`
}
