package mbox

import (
	"fmt"
	"io"

	"github.com/inbucket/mfck/pkg/bytestr"
)

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var months = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// CTime is the broken down calendar time of an envelope date.  Year is the
// full four digit year.  Only envelope dates attached to a non-empty sender
// are meaningful.
type CTime struct {
	Sec, Min, Hour int
	Day, Mon, Year int
	Wday           int
}

// parseKeyword consumes the first matching keyword, returning its index or
// -1 when none match.
func parseKeyword(cur *bytestr.Cursor, keywords []string) int {
	for i, kw := range keywords {
		if cur.TakeLiteralString(kw, true) {
			return i
		}
	}
	return -1
}

// parseTwoDigits consumes exactly two characters and returns their value, or
// -1 when they are not digits.  A leading space reads as zero.
func parseTwoDigits(cur *bytestr.Cursor) int {
	c1, ok1 := cur.TakeChar()
	c2, ok2 := cur.TakeChar()
	if !ok1 || !ok2 {
		return -1
	}
	if c1 == ' ' {
		c1 = '0'
	}
	if c1 < '0' || c1 > '9' || c2 < '0' || c2 > '9' {
		return -1
	}
	return int(c1-'0')*10 + int(c2-'0')
}

func isAlpha(ch int) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isAlnum(ch int) bool {
	return isAlpha(ch) || (ch >= '0' && ch <= '9')
}

// parseCTimeAt parses "Www Mmm DD HH:MM[:SS] [zone] YYYY [zone]".  This is
// not a stringent ctime parser since some mail systems leave out the seconds
// field and/or add a timezone.
func parseCTimeAt(cur *bytestr.Cursor, t *CTime) bool {
	wday := parseKeyword(cur, weekdays)
	if !cur.TakeByte(' ', true) {
		return false
	}
	mon := parseKeyword(cur, months)
	if !cur.TakeByte(' ', true) {
		return false
	}
	day := parseTwoDigits(cur)
	if day == -1 {
		return false
	}
	if !cur.TakeByte(' ', true) {
		return false
	}
	hour := parseTwoDigits(cur)
	if hour == -1 {
		return false
	}
	if !cur.TakeByte(':', true) {
		return false
	}
	min := parseTwoDigits(cur)
	if min == -1 {
		return false
	}
	sec := 0
	if cur.TakeByte(':', true) {
		sec = parseTwoDigits(cur)
		if sec == -1 {
			return false
		}
	}
	if !cur.TakeByte(' ', true) {
		return false
	}
	// Optional timezone, named or numeric, before the year.
	gotZone := false
	ch := cur.Peek()
	if isAlpha(ch) || ch == '+' || ch == '-' {
		if _, ok := cur.TakeUntilSpace(); !ok {
			return false
		}
		if !cur.TakeByte(' ', true) {
			return false
		}
		gotZone = true
	}
	y1 := parseTwoDigits(cur)
	y2 := parseTwoDigits(cur)
	if y1 == -1 || y2 == -1 {
		return false
	}
	// Or after it.
	if !gotZone {
		ch = cur.Peek()
		if isAlnum(ch) || ch == '+' || ch == '-' {
			_, _ = cur.TakeUntilSpace()
		}
	}
	if t != nil {
		t.Sec = sec
		t.Min = min
		t.Hour = hour
		t.Day = day
		t.Mon = mon
		t.Year = y1*100 + y2
		t.Wday = wday
	}
	return true
}

// ParseCTime parses a ctime style date, rewinding the cursor on failure.
func ParseCTime(cur *bytestr.Cursor, t *CTime) bool {
	pos := cur.Pos()
	if !parseCTimeAt(cur, t) {
		cur.MoveTo(pos)
		return false
	}
	return true
}

// RFC822 renders the time in RFC-822 header form.  The zone is "-0000"
// because envelope dates carry no offset.
func (t CTime) RFC822() bytestr.String {
	return bytestr.Printf("%s, %2d %s %4d %02d:%02d:%02d -0000",
		keywordOrEmpty(weekdays, t.Wday), t.Day, keywordOrEmpty(months, t.Mon),
		t.Year, t.Hour, t.Min, t.Sec)
}

// writeCTime emits the envelope line form: "Www Mmm dd hh:mm:ss yyyy".
func writeCTime(w io.Writer, t CTime) error {
	_, err := fmt.Fprintf(w, "%s %s %02d %02d:%02d:%02d %4d",
		keywordOrEmpty(weekdays, t.Wday), keywordOrEmpty(months, t.Mon), t.Day,
		t.Hour, t.Min, t.Sec, t.Year)
	return err
}

func keywordOrEmpty(keywords []string, i int) string {
	if i < 0 || i >= len(keywords) {
		return "???"
	}
	return keywords[i]
}
