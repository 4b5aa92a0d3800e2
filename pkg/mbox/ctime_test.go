package mbox

import (
	"bytes"
	"testing"

	"github.com/inbucket/mfck/pkg/bytestr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		want  CTime
	}{
		{"full", "Mon Apr  7 12:34:56 2008", true,
			CTime{Sec: 56, Min: 34, Hour: 12, Day: 7, Mon: 3, Year: 2008, Wday: 1}},
		{"two digit day", "Tue Dec 23 01:02:03 1997", true,
			CTime{Sec: 3, Min: 2, Hour: 1, Day: 23, Mon: 11, Year: 1997, Wday: 2}},
		{"no seconds", "Wed May 15 11:37 PDT 1996", true,
			CTime{Min: 37, Hour: 11, Day: 15, Mon: 4, Year: 1996, Wday: 3}},
		{"numeric zone", "Wed May 15 11:37:00 +0200 1996", true,
			CTime{Min: 37, Hour: 11, Day: 15, Mon: 4, Year: 1996, Wday: 3}},
		{"bad weekday", "Xxx Apr  7 12:34:56 2008", false, CTime{}},
		{"bad month", "Mon Foo  7 12:34:56 2008", false, CTime{}},
		{"bad day", "Mon Apr xx 12:34:56 2008", false, CTime{}},
		{"no colon", "Mon Apr  7 123456 2008", false, CTime{}},
		{"two digit year", "Mon Apr  7 12:34:56 08", false, CTime{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cur := bytestr.NewCursor(bytestr.S(tc.input))
			var got CTime
			ok := ParseCTime(cur, &got)
			require.Equal(t, tc.ok, ok)
			if !ok {
				assert.Equal(t, 0, cur.Pos())
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCTimeRFC822(t *testing.T) {
	ct := CTime{Sec: 56, Min: 34, Hour: 12, Day: 7, Mon: 3, Year: 2008, Wday: 1}
	assert.Equal(t, "Mon,  7 Apr 2008 12:34:56 -0000", ct.RFC822().String())
}

func TestWriteCTime(t *testing.T) {
	ct := CTime{Sec: 3, Min: 2, Hour: 1, Day: 9, Mon: 0, Year: 1999, Wday: 6}
	buf := &bytes.Buffer{}
	require.NoError(t, writeCTime(buf, ct))
	assert.Equal(t, "Sat Jan 09 01:02:03 1999", buf.String())
}
