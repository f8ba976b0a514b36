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

import "strconv"

// HistoricalResolver is a Getter clamped to a single revision of the
// document's incremental-update history (§4.6).
type HistoricalResolver struct {
	reader   *Reader
	revision int
	trailer  Dict
}

var _ Getter = (*HistoricalResolver)(nil)

// NewHistoricalResolver builds a resolver for revision (oldest = 0) of
// reader's document.
func NewHistoricalResolver(reader *Reader, revision int) (*HistoricalResolver, error) {
	if revision < 0 || revision >= reader.cache.TotalRevisions() {
		return nil, &InvalidArgumentError{Msg: "revision out of range"}
	}

	var stack []Dict
	for i := revision; i >= 0; i-- {
		stack = append(stack, reader.cache.GetXRefContainerInfo(i).Trailer)
	}

	return &HistoricalResolver{
		reader:   reader,
		revision: revision,
		trailer:  flattenTrailers(stack),
	}, nil
}

// TrailerView returns the flattened trailer snapshot up to and including
// this resolver's revision.
func (h *HistoricalResolver) TrailerView() Dict { return h.trailer }

// RootRef returns the /Root reference from this resolver's trailer view, if
// it is an indirect reference.
func (h *HistoricalResolver) RootRef() (Reference, bool) {
	ref, ok := h.trailer["Root"].(Reference)
	return ref, ok
}

// GetObject fetches ref, routing through the reader's current cache if
// ref's last change is at or before this resolver's revision, or through an
// explicit historical lookup otherwise (§4.6 "get_object").
//
// Go's object model does not carry a resolver-bound proxy inside nested
// References the way the original's dynamic object graph does (§9,
// "subsumption"): instead, HistoricalResolver itself implements Getter, so
// any caller that dereferences a nested Reference found inside the
// returned tree through this same resolver automatically stays within the
// chosen revision. This is a direct, idiomatic substitution for the
// original's tree-rewriting step, not a reduction in behavior.
func (h *HistoricalResolver) GetObject(ref Reference) (Object, error) {
	return h.Get(ref)
}

func (h *HistoricalResolver) Get(ref Reference) (Object, error) {
	if h.reader.cache.GetLastChange(ref.Number) <= h.revision {
		return h.reader.Get(ref)
	}
	return h.reader.GetAt(ref, h.revision)
}

func (h *HistoricalResolver) GetAt(ref Reference, revision int) (Object, error) {
	if revision > h.revision {
		revision = h.revision
	}
	return h.reader.GetAt(ref, revision)
}

// IsRefAvailable reports whether ref would not yet resolve at this
// resolver's revision -- used by incremental-update writers to pick ids
// that are safe to introduce as new objects (§4.6).
func (h *HistoricalResolver) IsRefAvailable(ref Reference) bool {
	intro := h.reader.cache.GetIntroducingRevision(ref)
	return intro < 0 || intro > h.revision
}

// ExplicitRefsInRevision delegates to the xref cache.
func (h *HistoricalResolver) ExplicitRefsInRevision(revision int) []Reference {
	return h.reader.cache.ExplicitRefsInRevision(revision)
}

// RefsFreedInRevision delegates to the xref cache.
func (h *HistoricalResolver) RefsFreedInRevision(revision int) []Reference {
	return h.reader.cache.RefsFreedInRevision(revision)
}

// ObjectStreamsUsed delegates to the xref cache.
func (h *HistoricalResolver) ObjectStreamsUsed(revision int) []Reference {
	return h.reader.cache.ObjectStreamsUsedIn(revision)
}

// CollectDependencies performs a DFS over indirect references reachable
// from obj, optionally pruning (not recursing through) references
// introduced strictly before sinceRevision (§4.6 "collect_dependencies").
// Pass sinceRevision <= 0 to collect every reachable reference.
func (h *HistoricalResolver) CollectDependencies(obj Object, sinceRevision int) ([]Reference, error) {
	seen := make(map[Reference]bool)
	var result []Reference

	var walk func(o Object) error
	walk = func(o Object) error {
		switch v := o.(type) {
		case Reference:
			if seen[v] {
				return nil
			}
			seen[v] = true
			result = append(result, v)

			if sinceRevision > 0 {
				intro := h.reader.cache.GetIntroducingRevision(v)
				if intro >= 0 && intro < sinceRevision {
					return nil
				}
			}
			child, err := h.GetObject(v)
			if err != nil {
				return err
			}
			return walk(child)
		case Dict:
			for _, val := range v {
				if err := walk(val); err != nil {
					return err
				}
			}
		case Array:
			for _, val := range v {
				if err := walk(val); err != nil {
					return err
				}
			}
		case *Stream:
			return walk(v.Dict)
		}
		return nil
	}

	if err := walk(obj); err != nil {
		return nil, err
	}
	return result, nil
}

// PathStep is one segment of a RawPdfPath: either a dictionary key or an
// array index.
type PathStep struct {
	Key     Name
	IsIndex bool
	Index   int
}

func (s PathStep) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return "." + string(s.Key)
}

// RawPdfPath is an immutable sequence of steps from the trailer to some
// indirect reference (§4.6 "RawPdfPath").
type RawPdfPath struct {
	Steps []PathStep
}

func (p RawPdfPath) String() string {
	out := ""
	for _, s := range p.Steps {
		out += s.String()
	}
	return out
}

// consList is an immutable cons-list of path steps, built by prepending a
// new head at each recursion level and never mutated during the DFS (§9
// "Cons-list path traversal").
type consList struct {
	head PathStep
	tail *consList
}

func cons(head PathStep, tail *consList) *consList {
	return &consList{head: head, tail: tail}
}

// toSlice flattens the cons-list (built innermost-first) into root-to-leaf
// order.
func (c *consList) toSlice() []PathStep {
	var steps []PathStep
	for n := c; n != nil; n = n.tail {
		steps = append(steps, n.head)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// ReverseXRefIndex maps each indirect reference to every path (from the
// trailer) found to reach it.
type ReverseXRefIndex map[Reference][]RawPdfPath

// LoadReverseXRefCache builds the ref -> paths index for this resolver's
// revision (§4.6 "_load_reverse_xref_cache"). The walk avoids /Parent
// back-edges and, once inside the page tree, does not extend paths through
// references that lead back out of it.
func (h *HistoricalResolver) LoadReverseXRefCache() (ReverseXRefIndex, error) {
	index := make(ReverseXRefIndex)
	visited := make(map[Reference]bool)

	var walk func(obj Object, path *consList, inPageTree bool) error
	walk = func(obj Object, path *consList, inPageTree bool) error {
		switch v := obj.(type) {
		case Reference:
			index[v] = append(index[v], RawPdfPath{Steps: path.toSlice()})
			if visited[v] {
				return nil
			}
			visited[v] = true

			child, err := h.GetObject(v)
			if err != nil {
				// An unreadable reference is a dead end for path-building
				// purposes, not a fatal error for the whole index.
				return nil
			}

			isPageTreeNode := false
			if d, ok := child.(Dict); ok {
				if t, ok := d["Type"].(Name); ok && (t == "Pages" || t == "Page") {
					isPageTreeNode = true
				}
			}
			if inPageTree && !isPageTreeNode {
				return nil
			}
			return walk(child, path, inPageTree || isPageTreeNode)

		case Dict:
			for k, val := range v {
				if k == "Parent" {
					continue
				}
				if err := walk(val, cons(PathStep{Key: k}, path), inPageTree); err != nil {
					return err
				}
			}
		case Array:
			for i, val := range v {
				if err := walk(val, cons(PathStep{IsIndex: true, Index: i}, path), inPageTree); err != nil {
					return err
				}
			}
		case *Stream:
			return walk(v.Dict, path, inPageTree)
		}
		return nil
	}

	if err := walk(Dict(h.trailer), nil, false); err != nil {
		return nil, err
	}
	return index, nil
}
