// Package viewio holds the view transport encoders (§6.2): a binary
// framed file format (internal/viewio/file), a message-bus wire format
// (internal/viewio/bus), and a human-readable dump (internal/viewio/ascii).
// Filter composes the three optional predicates every encoder honors.
package viewio

import (
	"net/netip"

	"github.com/route-beacon/bgpview/internal/aspath"
	"github.com/route-beacon/bgpview/internal/peersig"
)

// Filter bundles the three optional predicates §6.3 describes. A nil
// field is treated as "no constraint"; an item is included iff every
// supplied predicate returns true. The order in which an encoder calls the
// predicates is not the same across encoders: the ascii encoder, for one,
// calls FilterPfx on a prefix before FilterPeer on its entries.
type Filter struct {
	FilterPeer    func(sig peersig.Sig) bool
	FilterPfx     func(pfx netip.Prefix) bool
	FilterPfxPeer func(path aspath.StorePath) bool
}

// IncludePeer reports whether sig passes FilterPeer (or passes trivially
// if unset).
func (f Filter) IncludePeer(sig peersig.Sig) bool {
	return f.FilterPeer == nil || f.FilterPeer(sig)
}

// IncludePfx reports whether pfx passes FilterPfx.
func (f Filter) IncludePfx(pfx netip.Prefix) bool {
	return f.FilterPfx == nil || f.FilterPfx(pfx)
}

// IncludePfxPeer reports whether path passes FilterPfxPeer.
func (f Filter) IncludePfxPeer(path aspath.StorePath) bool {
	return f.FilterPfxPeer == nil || f.FilterPfxPeer(path)
}
