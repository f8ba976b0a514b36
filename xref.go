// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2021  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pdf

import "fmt"

// xrefKind distinguishes the three shapes an XRefEntry can take.
type xrefKind int

const (
	xrefFree xrefKind = iota
	xrefInUse
	xrefCompressed
)

// XRefEntry records what the xref machinery knows about one (id, generation)
// slot at a single point in the file's incremental-update history.
type XRefEntry struct {
	kind xrefKind

	// Offset is valid when kind == xrefInUse: the byte offset of the
	// indirect object in the original byte stream.
	Offset int64

	// StreamID and Index are valid when kind == xrefCompressed: the object
	// lives inside the object stream with id StreamID, at position Index.
	StreamID uint32
	Index    int

	// NextGeneration is valid when kind == xrefFree: the generation the
	// next object written to this id must carry.
	NextGeneration uint16
}

func (e XRefEntry) IsFree() bool       { return e.kind == xrefFree }
func (e XRefEntry) IsInUse() bool      { return e.kind == xrefInUse }
func (e XRefEntry) IsCompressed() bool { return e.kind == xrefCompressed }

func inUseEntry(offset int64) XRefEntry {
	return XRefEntry{kind: xrefInUse, Offset: offset}
}

func compressedEntry(streamID uint32, index int) XRefEntry {
	return XRefEntry{kind: xrefCompressed, StreamID: uint32(streamID), Index: index}
}

func freeEntry(nextGeneration uint16) XRefEntry {
	return XRefEntry{kind: xrefFree, NextGeneration: nextGeneration}
}

// refGen is the key used internally to index per-(id,generation) history:
// pyHanko indexes history as (generation, idnum); we do the same so that
// sneaky-reuse detection and get_historical_ref carry over unchanged.
type refGen struct {
	id  uint32
	gen uint16
}

type historyPoint struct {
	// section is the index (0 = oldest-parsed-last, i.e. the section parsed
	// first since we parse newest to oldest) at which this entry was
	// written. Stored in parse order (newest first), exactly like pyHanko's
	// self.history lists.
	section int
	entry   XRefEntry
}

// XRefCache reconstructs the full chain of incremental updates in a PDF
// file: every cross-reference section (table or stream) contributes entries
// here, newest section first. Once NewReader has finished walking the chain,
// the cache is immutable and supports both "current" and historical
// queries.
//
// This is a direct structural port of the bookkeeping pyHanko's
// pdf_utils.reader.XRefCache performs, expressed with Go's native map/slice
// idioms instead of Python's defaultdict.
type XRefCache struct {
	sections int // total number of sections parsed so far

	// standard holds the "winning" (most recent) entry for each
	// (generation, id) pair that is not living in an object stream.
	standard map[refGen]XRefEntry

	// inObjStream holds the winning entry for ids whose current location is
	// inside an object stream (always generation 0).
	inObjStream map[uint32]XRefEntry

	// lastChange[id] is the section index (in parse order) in which id was
	// last written or freed.
	lastChange map[uint32]int

	// history[(gen,id)] accumulates every (section, entry) pair seen for
	// that slot, in parse order (newest first).
	history map[refGen][]historyPoint

	// generations[id] is the set of generations observed for id anywhere in
	// the file, used for sneaky-reuse detection.
	generations map[uint32]map[uint16]bool

	// previousExpectedFree[id] = g means: we have seen an in-use entry for
	// (id, g) with g > 0, so somewhere further back (older) in the file
	// there must be a free event that frees generation g-1 into g.
	previousExpectedFree map[uint32]uint16

	currentSectionIDs   map[Reference]bool
	currentSectionFreed map[Reference]bool

	refsBySection    [][]Reference
	freedBySection   [][]Reference
	xrefLocations    []int64
	containerInfo    []XRefContainerInfo
	objStreamsBySect map[int]map[Reference]bool
}

// XRefContainerInfo records where one section's xref structure itself was
// stored: a classic xref table with its trailer, or an xref stream object.
type XRefContainerInfo struct {
	IsStream  bool
	StreamRef Reference
	Trailer   Dict
}

// NewXRefCache creates an empty cache, ready to have sections fed into it
// newest-first via PutRef/FreeRef/PutObjStreamRef/FinishSection.
func NewXRefCache() *XRefCache {
	return &XRefCache{
		standard:             make(map[refGen]XRefEntry),
		inObjStream:          make(map[uint32]XRefEntry),
		lastChange:           make(map[uint32]int),
		history:              make(map[refGen][]historyPoint),
		generations:          make(map[uint32]map[uint16]bool),
		previousExpectedFree: make(map[uint32]uint16),
		currentSectionIDs:    make(map[Reference]bool),
		currentSectionFreed:  make(map[Reference]bool),
		objStreamsBySect:     make(map[int]map[Reference]bool),
	}
}

func (c *XRefCache) usedLater(id uint32, gen uint16) bool {
	gens, ok := c.generations[id]
	return ok && gens[gen]
}

func (c *XRefCache) markGeneration(id uint32, gen uint16) {
	gens, ok := c.generations[id]
	if !ok {
		gens = make(map[uint16]bool)
		c.generations[id] = gens
	}
	gens[gen] = true
}

// PutRef records that, at the current section, object (id, gen) is in use
// starting at byte offset offset.
func (c *XRefCache) PutRef(id uint32, gen uint16, offset int64) error {
	if expected, waiting := c.previousExpectedFree[id]; waiting {
		if expected != gen {
			return &ReadError{Msg: fmt.Sprintf(
				"generation %d of object %d was never freed, but reused later", gen, id)}
		}
		delete(c.previousExpectedFree, id)
	}
	if gen > 0 {
		c.previousExpectedFree[id] = gen
	}

	if !c.usedLater(id, gen) {
		c.standard[refGen{id, gen}] = inUseEntry(offset)
		c.lastChange[id] = c.sections
		delete(c.generations, id)
	}
	c.markGeneration(id, gen)

	key := refGen{id, gen}
	c.history[key] = append(c.history[key], historyPoint{section: c.sections, entry: inUseEntry(offset)})

	ref := Reference{Number: id, Generation: gen}
	c.currentSectionIDs[ref] = true
	return nil
}

// PutObjStreamRef records that, at the current section, object id (always
// generation 0) lives inside the object stream streamID at index idx.
func (c *XRefCache) PutObjStreamRef(id uint32, streamID uint32, idx int) {
	if c.objStreamsBySect[c.sections] == nil {
		c.objStreamsBySect[c.sections] = make(map[Reference]bool)
	}
	c.objStreamsBySect[c.sections][Reference{Number: streamID, Generation: 0}] = true

	entry := compressedEntry(streamID, idx)
	if !c.usedLater(id, 0) {
		c.inObjStream[id] = entry
		c.lastChange[id] = c.sections
		delete(c.generations, id)
	}
	c.markGeneration(id, 0)

	key := refGen{id, 0}
	c.history[key] = append(c.history[key], historyPoint{section: c.sections, entry: entry})

	c.currentSectionIDs[Reference{Number: id, Generation: 0}] = true
}

// FreeRef records a freeing instruction: object id is free, and its next use
// must carry generation nextGen. Per §9, nextGen == 0 is interpreted as
// freeing generation 65535 (wraparound is undefined by the standard).
func (c *XRefCache) FreeRef(id uint32, nextGen uint16) error {
	if id == 0 {
		return nil
	}
	var prevGen uint16
	if nextGen == 0 {
		prevGen = 65535
	} else {
		prevGen = nextGen - 1
	}

	c.standard[refGen{id, prevGen}] = freeEntry(nextGen)

	nullRef := Reference{Number: id, Generation: prevGen}
	c.currentSectionFreed[nullRef] = true
	c.currentSectionIDs[nullRef] = true

	if gens, ok := c.generations[id]; ok {
		for g := range gens {
			if g <= prevGen {
				return &ReadError{Msg: fmt.Sprintf(
					"generation %d of object %d occurs after generation %d was freed",
					g, id, prevGen)}
			}
		}
		gens[prevGen] = true
	} else {
		c.markGeneration(id, prevGen)
	}

	if _, ok := c.lastChange[id]; !ok {
		c.lastChange[id] = c.sections
	}

	if expected, ok := c.previousExpectedFree[id]; ok {
		delete(c.previousExpectedFree, id)
		if expected != nextGen {
			return &ReadError{Msg: fmt.Sprintf(
				"freeing instruction with next generation %d of object %d conflicts "+
					"with next use at generation %d", nextGen, id, expected)}
		}
	}
	return nil
}

// FinishSection closes out the section currently being accumulated: it is
// called once per xref table or xref stream, after all of its entries (and
// its trailer) have been processed.
func (c *XRefCache) FinishSection(loc int64, info XRefContainerInfo) {
	c.sections++
	c.xrefLocations = append(c.xrefLocations, loc)
	c.containerInfo = append(c.containerInfo, info)
	c.refsBySection = append(c.refsBySection, setToSlice(c.currentSectionIDs))
	c.freedBySection = append(c.freedBySection, setToSlice(c.currentSectionFreed))
	c.currentSectionIDs = make(map[Reference]bool)
	c.currentSectionFreed = make(map[Reference]bool)
}

func setToSlice(m map[Reference]bool) []Reference {
	out := make([]Reference, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	return out
}

// CheckAllFreedBeforeUse enforces the invariant from §3: every InUse entry
// with generation > 0 must be matched, walking forward from older to newer
// revisions, by a prior free event. After a full parse, any entry still
// marked as expected-to-be-freed is a fatal inconsistency.
func (c *XRefCache) CheckAllFreedBeforeUse() error {
	for id, gen := range c.previousExpectedFree {
		return &ReadError{Msg: fmt.Sprintf(
			"object %d generation %d was never preceded by a free event", id, gen)}
	}
	return nil
}

// TotalRevisions returns the number of sections (= incremental-update
// revisions) found in the file.
func (c *XRefCache) TotalRevisions() int { return c.sections }

// Lookup returns the current (most recent) entry for ref.
func (c *XRefCache) Lookup(ref Reference) (XRefEntry, bool) {
	if ref.Generation == 0 {
		if e, ok := c.inObjStream[ref.Number]; ok {
			return e, true
		}
	}
	e, ok := c.standard[refGen{ref.Number, ref.Generation}]
	return e, ok
}

// GetLastChange returns the revision number (oldest = 0) in which id was
// last written or freed.
func (c *XRefCache) GetLastChange(id uint32) int {
	return c.sections - 1 - c.lastChange[id]
}

// ObjectStreamsUsedIn returns the set of object-stream references consulted
// while parsing the given revision.
func (c *XRefCache) ObjectStreamsUsedIn(revision int) []Reference {
	return setToSlice(c.objStreamsBySect[c.sections-1-revision])
}

// GetIntroducingRevision returns the oldest revision at which ref's history
// has an entry -- the revision where the object was first introduced.
func (c *XRefCache) GetIntroducingRevision(ref Reference) int {
	hist := c.history[refGen{ref.Number, ref.Generation}]
	if len(hist) == 0 {
		return -1
	}
	section := hist[len(hist)-1].section
	return c.sections - 1 - section
}

// GetXRefContainerInfo returns where the xref section for revision was
// stored.
func (c *XRefCache) GetXRefContainerInfo(revision int) XRefContainerInfo {
	return c.containerInfo[c.sections-1-revision]
}

// ExplicitRefsInRevision returns every reference explicitly written (in use
// or freed) in the given revision.
func (c *XRefCache) ExplicitRefsInRevision(revision int) []Reference {
	return c.refsBySection[c.sections-1-revision]
}

// RefsFreedInRevision returns every reference explicitly freed in the given
// revision.
func (c *XRefCache) RefsFreedInRevision(revision int) []Reference {
	return c.freedBySection[c.sections-1-revision]
}

// GetStartXRefForRevision returns the byte offset of the xref structure
// associated with the given revision.
func (c *XRefCache) GetStartXRefForRevision(revision int) int64 {
	return c.xrefLocations[c.sections-1-revision]
}

// GetHistoricalRef returns the entry that was current for ref at the given
// revision (oldest = 0). Revisions are recorded newest-first in history, so
// the first entry whose section is at or before `revision` is the answer.
func (c *XRefCache) GetHistoricalRef(ref Reference, revision int) (XRefEntry, error) {
	maxIndex := c.sections - 1
	hist := c.history[refGen{ref.Number, ref.Generation}]
	for _, h := range hist {
		if revision >= maxIndex-h.section {
			return h.entry, nil
		}
	}
	return XRefEntry{}, &ReadError{Msg: fmt.Sprintf(
		"could not find object (%d %d) in history at revision %d",
		ref.Number, ref.Generation, revision)}
}
