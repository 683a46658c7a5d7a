package domain

import "sort"

// Entry is one member of an ordered sibling sequence: a list within its
// board, or a card within its list. Positions of non-deleted siblings are
// always the contiguous range [0, n-1].
type Entry struct {
	ID       string
	Position int
}

// Sequence is an ordered set of sibling entries. All operations are pure:
// they return renumbered copies and never mutate their input.
type Sequence []Entry

func (s Sequence) sorted() Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s Sequence) renumber() Sequence {
	for i := range s {
		s[i].Position = i
	}
	return s
}

// IndexOf returns the position of id, or -1 when absent.
func (s Sequence) IndexOf(id string) int {
	for _, e := range s {
		if e.ID == id {
			return e.Position
		}
	}
	return -1
}

func clamp(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

// InsertAt places newID at the desired index, shifting every entry at or
// after that index up by one. The index is clamped to [0, len(s)].
func (s Sequence) InsertAt(newID string, index int) Sequence {
	out := s.sorted()
	index = clamp(index, len(out))
	out = append(out, Entry{})
	copy(out[index+1:], out[index:])
	out[index] = Entry{ID: newID}
	return out.renumber()
}

// Append places newID at the end of the sequence.
func (s Sequence) Append(newID string) Sequence {
	return s.InsertAt(newID, len(s))
}

// Remove drops id from the sequence and shifts later entries down by one.
// Removing an absent id is a no-op.
func (s Sequence) Remove(id string) Sequence {
	out := s.sorted()
	for i, e := range out {
		if e.ID == id {
			out = append(out[:i], out[i+1:]...)
			break
		}
	}
	return out.renumber()
}

// Move relocates id to the clamped new index within the same sequence,
// shifting the entries between the old and new index by one. Moving an
// entry to its current index leaves every position unchanged.
func (s Sequence) Move(id string, index int) Sequence {
	if s.IndexOf(id) < 0 {
		return s.sorted().renumber()
	}
	return s.Remove(id).InsertAt(id, index)
}

// MoveAcross relocates id from source to the clamped index in target, as a
// single logical step: the returned pair never shows id in both sequences
// or in neither.
func MoveAcross(source, target Sequence, id string, index int) (Sequence, Sequence) {
	return source.Remove(id), target.InsertAt(id, index)
}

// Changed returns the entries of after whose position differs from their
// position in before, including entries absent from before. This is the set
// of rows a reindex has to persist.
func Changed(before, after Sequence) Sequence {
	prev := make(map[string]int, len(before))
	for _, e := range before {
		prev[e.ID] = e.Position
	}
	var out Sequence
	for _, e := range after {
		if p, ok := prev[e.ID]; !ok || p != e.Position {
			out = append(out, e)
		}
	}
	return out
}

// Contiguous reports whether the sequence satisfies the position invariant:
// sorted positions form exactly [0, n-1] with no duplicates.
func (s Sequence) Contiguous() bool {
	seen := make([]bool, len(s))
	for _, e := range s {
		if e.Position < 0 || e.Position >= len(s) || seen[e.Position] {
			return false
		}
		seen[e.Position] = true
	}
	return true
}
