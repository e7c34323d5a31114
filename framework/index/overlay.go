package index

import "github.com/lexcodex/schemals/framework/symbols"

// Overlay is a read view of the index in which one document's committed
// table is replaced by a pending table. Analysis resolves against an
// overlay so the pending table is only published by Commit.
type Overlay struct {
	idx     *Index
	pending *symbols.Table
}

// Overlay returns a view with table standing in for its document.
func (idx *Index) Overlay(table *symbols.Table) *Overlay {
	return &Overlay{idx: idx, pending: table}
}

// Pending returns the table being analysed.
func (o *Overlay) Pending() *symbols.Table {
	return o.pending
}

// Table returns the pending table for its URI and committed tables otherwise.
func (o *Overlay) Table(uri string) (*symbols.Table, bool) {
	if uri == o.pending.URI() {
		return o.pending, true
	}
	return o.idx.Table(uri)
}

// LookupByName merges the pending table's declarations into the committed
// by-name results, keeping the index ordering.
func (o *Overlay) LookupByName(name, fromURI string, mask symbols.KindMask) []Match {
	o.idx.mu.RLock()
	out := o.idx.lookupLocked(name, fromURI, mask, o.pending.URI())
	o.idx.mu.RUnlock()
	for _, sym := range o.pending.DeclarationsNamed(name, mask) {
		out = append(out, Match{Symbol: sym, Ref: sym.Ref(o.pending.Generation())})
	}
	SortMatches(out, fromURI)
	return out
}

// InheritedDocuments returns committed inherits edges. The pending
// document's own edges are not committed yet; the resolver derives them.
func (o *Overlay) InheritedDocuments(uri string) []string {
	if uri == o.pending.URI() {
		return nil
	}
	return o.idx.InheritedDocuments(uri)
}

// Reaches reports committed inherits reachability.
func (o *Overlay) Reaches(from, to string) bool {
	return o.idx.Reaches(from, to)
}

// EdgeCyclic reports whether a committed inherits edge lies on a cycle.
func (o *Overlay) EdgeCyclic(from, to string) bool {
	return o.idx.EdgeCyclic(from, to)
}
