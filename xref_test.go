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

import "testing"

func containsRef(refs []Reference, want Reference) bool {
	for _, r := range refs {
		if r == want {
			return true
		}
	}
	return false
}

// TestXRefCacheRevisionHistory implements concrete scenario 3: object
// (5,0) is written at revisions 0 and 2 (out of 0,1,2). Revision 1 must not
// mention it, revision 2 must, and the historical lookup at revision 1 must
// return the revision-0 marker.
func TestXRefCacheRevisionHistory(t *testing.T) {
	c := NewXRefCache()

	// Oldest-parsed-last convention: feed sections newest (section 2)
	// first, then section 1, then section 0 (oldest).
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	// Section parsed first = revision 2 (newest).
	must(c.PutRef(5, 0, 5000))
	must(c.PutRef(1, 0, 100))
	c.FinishSection(9000, XRefContainerInfo{Trailer: Dict{"rev": Integer(2)}})

	// Section parsed second = revision 1.
	must(c.PutRef(1, 0, 90))
	c.FinishSection(6000, XRefContainerInfo{Trailer: Dict{"rev": Integer(1)}})

	// Section parsed third = revision 0 (oldest).
	must(c.PutRef(5, 0, 50))
	must(c.PutRef(1, 0, 10))
	c.FinishSection(1000, XRefContainerInfo{Trailer: Dict{"rev": Integer(0)}})

	if c.TotalRevisions() != 3 {
		t.Fatalf("TotalRevisions() = %d, want 3", c.TotalRevisions())
	}

	ref5 := Reference{Number: 5, Generation: 0}

	if !containsRef(c.ExplicitRefsInRevision(2), ref5) {
		t.Fatalf("explicit_refs_in_revision(2) must contain (5,0)")
	}
	if containsRef(c.ExplicitRefsInRevision(1), ref5) {
		t.Fatalf("explicit_refs_in_revision(1) must not contain (5,0)")
	}

	entry, err := c.GetHistoricalRef(ref5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Offset != 50 {
		t.Fatalf("get_historical_ref((5,0), 1) offset = %d, want 50 (revision 0's marker)", entry.Offset)
	}

	entry2, err := c.GetHistoricalRef(ref5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if entry2.Offset != 5000 {
		t.Fatalf("get_historical_ref((5,0), 2) offset = %d, want 5000", entry2.Offset)
	}
}

// TestXRefCacheFreeThenReuse implements the accepted half of concrete
// scenario 4: a freed object (7,0) reused at generation 1 in a later
// revision parses successfully.
func TestXRefCacheFreeThenReuse(t *testing.T) {
	// Correct order: parsed newest-first, so the reuse (gen 1) comes first,
	// then (walking backward) the free event that freed generation 0 into
	// generation 1.
	c := NewXRefCache()
	if err := c.PutRef(7, 1, 7000); err != nil {
		t.Fatalf("reuse at generation 1 should be accepted: %v", err)
	}
	c.FinishSection(9000, XRefContainerInfo{})
	if err := c.FreeRef(7, 1); err != nil {
		t.Fatalf("freeing event should be accepted: %v", err)
	}
	c.FinishSection(1000, XRefContainerInfo{})
	if err := c.CheckAllFreedBeforeUse(); err != nil {
		t.Fatalf("CheckAllFreedBeforeUse: %v", err)
	}
}

func TestXRefCacheReuseWithoutFreeIsFatal(t *testing.T) {
	c := NewXRefCache()
	if err := c.PutRef(7, 1, 7000); err != nil {
		t.Fatal(err)
	}
	c.FinishSection(9000, XRefContainerInfo{})
	// No free event ever appears for (7, 0->1): the chain is incomplete.
	if err := c.CheckAllFreedBeforeUse(); err == nil {
		t.Fatalf("an in-use entry with generation > 0 and no matching free event must be fatal")
	}
}

func TestXRefCacheFreeWithMismatchedNextGenerationIsFatal(t *testing.T) {
	// (7,2) is in use in the newest section, which obliges some older
	// section to contain a free event whose next_generation is 2. A free
	// event that instead claims next_generation 1 is inconsistent with
	// that expectation and must be rejected.
	c := NewXRefCache()
	if err := c.PutRef(7, 2, 7000); err != nil {
		t.Fatal(err)
	}
	c.FinishSection(9000, XRefContainerInfo{})
	if err := c.FreeRef(7, 1); err == nil {
		t.Fatalf("a free event whose next_generation disagrees with the observed reuse must fail")
	}
}

func TestXRefCacheLookupPrefersObjectStream(t *testing.T) {
	c := NewXRefCache()
	c.PutObjStreamRef(10, 3, 5)
	c.FinishSection(0, XRefContainerInfo{})

	e, ok := c.Lookup(Reference{Number: 10, Generation: 0})
	if !ok || !e.IsCompressed() || e.StreamID != 3 || e.Index != 5 {
		t.Fatalf("Lookup did not return the compressed entry: %+v, ok=%v", e, ok)
	}
}
