package mbox

import (
	"fmt"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/inbucket/mfck/pkg/diag"
)

// Set names messages by ordinal number as a chain of inclusive ranges.
// Iteration yields ascending numbers falling in any range; tombstones are
// not filtered here, callers decide.
type Set struct {
	Min, Max int
	link     *Set
}

// ParseSet parses "min[-[max]][,...]" or "*" at the cursor, with "*"
// standing for the last message number, both alone and as a range maximum.
func ParseSet(cur *bytestr.Cursor, last int) (*Set, bool) {
	var min, max int
	if cur.TakeByte('*', true) {
		min, max = 1, last
	} else {
		var ok bool
		if min, ok = cur.TakeInteger(); !ok {
			return nil, false
		}
		if cur.TakeByte('-', true) {
			if n, ok := cur.TakeInteger(); ok {
				max = n
			} else {
				cur.TakeByte('*', true)
				max = last
			}
		} else {
			max = min
		}
	}
	var link *Set
	if cur.TakeByte(',', true) {
		link, _ = ParseSet(cur, last)
	}
	return &Set{Min: min, Max: max, link: link}, true
}

// ParseSetString parses a complete message set argument, rejecting trailing
// garbage.
func ParseSetString(arg string, last int) (*Set, error) {
	cur := bytestr.NewCursor(bytestr.S(arg))
	set, ok := ParseSet(cur, last)
	if !ok || !cur.AtEnd() {
		return nil, fmt.Errorf("malformed message set %q: %w", arg, diag.ErrParse)
	}
	return set, nil
}

// Append links o onto the end of s, returning the head of the combined set.
func (s *Set) Append(o *Set) *Set {
	if s == nil {
		return o
	}
	p := s
	for p.link != nil {
		p = p.link
	}
	p.link = o
	return s
}

// First returns the lowest number in the set, or -1 when it is empty.
func (s *Set) First() int {
	return s.Next(0)
}

// Next returns the smallest number after cur that falls in any range, or -1
// when exhausted.  Ranges may overlap, arrive out of order, or be empty.
func (s *Set) Next(cur int) int {
	best := -1
	for r := s; r != nil; r = r.link {
		if r.Min > r.Max {
			continue
		}
		var cand int
		switch {
		case cur < r.Min:
			cand = r.Min
		case cur < r.Max:
			cand = cur + 1
		default:
			continue
		}
		if best == -1 || cand < best {
			best = cand
		}
	}
	return best
}
