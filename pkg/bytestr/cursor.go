package bytestr

// Cursor walks a String, handing out Borrowed views of the bytes it consumes.
// Predicates never fail hard; they return ok flags and leave the position
// unchanged on a miss unless documented otherwise.
type Cursor struct {
	base String
	pos  int
}

// NewCursor positions a cursor at the start of base.
func NewCursor(base String) *Cursor {
	return &Cursor{base: base}
}

// Base returns the string the cursor walks.
func (c *Cursor) Base() String { return c.base }

// Pos returns the current byte offset.
func (c *Cursor) Pos() int { return c.pos }

// Rest returns a view of the unconsumed bytes.
func (c *Cursor) Rest() String { return c.base.Sub(c.pos, c.base.Len()) }

// Remaining returns the number of unconsumed bytes.
func (c *Cursor) Remaining() int { return c.base.Len() - c.pos }

// AtEnd reports whether the cursor has consumed everything.
func (c *Cursor) AtEnd() bool { return c.pos >= c.base.Len() }

// MoveTo repositions the cursor, failing when pos is outside [0, len].
func (c *Cursor) MoveTo(pos int) bool {
	if pos < 0 || pos > c.base.Len() {
		return false
	}
	c.pos = pos
	return true
}

// Move adjusts the position by the signed count.
func (c *Cursor) Move(count int) bool {
	return c.MoveTo(c.pos + count)
}

// Since returns the bytes consumed since mark.
func (c *Cursor) Since(mark int) String {
	return c.base.Sub(mark, c.pos)
}

// Peek returns the next byte without consuming it, or -1 at the end.
func (c *Cursor) Peek() int {
	if c.AtEnd() {
		return -1
	}
	return int(c.base.b[c.pos])
}

// TakeChar consumes and returns one byte.
func (c *Cursor) TakeChar() (byte, bool) {
	if c.AtEnd() {
		return 0, false
	}
	ch := c.base.b[c.pos]
	c.pos++
	return ch, true
}

// TakeByte consumes the next byte iff it matches ch.
func (c *Cursor) TakeByte(ch byte, sameCase bool) bool {
	p := c.Peek()
	if p < 0 {
		return false
	}
	b := byte(p)
	if b == ch || (!sameCase && lowerASCII(b) == lowerASCII(ch)) {
		c.pos++
		return true
	}
	return false
}

// TakeLiteral consumes expect iff it prefixes the rest.
func (c *Cursor) TakeLiteral(expect String, sameCase bool) bool {
	if !c.Rest().HasPrefix(expect, sameCase) {
		return false
	}
	c.pos += expect.Len()
	return true
}

// TakeLiteralString consumes a literal given as a Go string.
func (c *Cursor) TakeLiteralString(expect string, sameCase bool) bool {
	return c.TakeLiteral(S(expect), sameCase)
}

// TakeSpaces consumes a run of spaces and tabs, reporting whether there was
// at least one.
func (c *Cursor) TakeSpaces() bool {
	start := c.pos
	for !c.AtEnd() {
		ch := c.base.b[c.pos]
		if ch != ' ' && ch != '\t' {
			break
		}
		c.pos++
	}
	return c.pos > start
}

// TakeNewline consumes one \r?\n (or a lone \r).
func (c *Cursor) TakeNewline() bool {
	start := c.pos
	if !c.AtEnd() && c.base.b[c.pos] == '\r' {
		c.pos++
	}
	if !c.AtEnd() && c.base.b[c.pos] == '\n' {
		c.pos++
	}
	return c.pos > start
}

// BackOverNewline moves left over a single \r?\n immediately before the
// cursor, reporting whether it moved.
func (c *Cursor) BackOverNewline() bool {
	p := c.pos
	if p > 0 && c.base.b[p-1] == '\n' {
		p--
	}
	if p > 0 && c.base.b[p-1] == '\r' {
		p--
	}
	moved := p < c.pos
	c.pos = p
	return moved
}

// TakeUntilByte advances to the next occurrence of ch, leaving the cursor at
// it and returning the intervening bytes.  On a miss the cursor stays put.
func (c *Cursor) TakeUntilByte(ch byte, sameCase bool) (String, bool) {
	pos := c.Rest().FindByte(ch, sameCase)
	if pos == NotFound {
		return String{}, false
	}
	res := c.base.Sub(c.pos, c.pos+pos)
	c.pos += pos
	return res, true
}

// TakeUntil advances to the next occurrence of sub, leaving the cursor at it
// and returning the intervening bytes.  The empty string matches immediately.
func (c *Cursor) TakeUntil(sub String, sameCase bool) (String, bool) {
	pos := c.Rest().Find(sub, sameCase)
	if pos == NotFound {
		return String{}, false
	}
	res := c.base.Sub(c.pos, c.pos+pos)
	c.pos += pos
	return res, true
}

// TakeUntilSpace advances to the next space character.
func (c *Cursor) TakeUntilSpace() (String, bool) {
	return c.TakeUntilByte(' ', true)
}

// TakeUntilNewline advances to the next CR or LF, returning the intervening
// bytes.  On a miss the cursor stays put.
func (c *Cursor) TakeUntilNewline() (String, bool) {
	pos := c.Rest().FindNewline()
	if pos == NotFound {
		return String{}, false
	}
	res := c.base.Sub(c.pos, c.pos+pos)
	c.pos += pos
	return res, true
}

// TakeToEnd consumes and returns everything left.
func (c *Cursor) TakeToEnd() String {
	res := c.Rest()
	c.pos = c.base.Len()
	return res
}

// TakeLine returns the text up to the next newline and consumes the newline
// too; at the end of data it returns whatever is left.
func (c *Cursor) TakeLine() String {
	if line, ok := c.TakeUntilNewline(); ok {
		c.TakeNewline()
		return line
	}
	return c.TakeToEnd()
}

// TakeInteger consumes a run of decimal digits.
func (c *Cursor) TakeInteger() (int, bool) {
	start := c.pos
	num := 0
	for !c.AtEnd() {
		ch := c.base.b[c.pos]
		if ch < '0' || ch > '9' {
			break
		}
		num = num*10 + int(ch-'0')
		c.pos++
	}
	if c.pos == start {
		return 0, false
	}
	return num, true
}
