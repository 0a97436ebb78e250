// Package mask renders durations through clock-face templates such as "hh:mm:ss".
//
// A mask recognizes the patterns h/hh, m/mm and s/ss. A single letter renders the
// field at its natural width, a doubled letter zero-pads it to two digits. Every
// other character is copied verbatim.
package mask

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default is the mask used when none is configured.
const Default = "hh:mm:ss"

// Field identifies one of the clock-face fields a mask can reference.
type Field byte

const (
	Hours   Field = 'h'
	Minutes Field = 'm'
	Seconds Field = 's'
)

var fieldPattern = regexp.MustCompile(`h{1,2}|m{1,2}|s{1,2}`)

// Fields is the wall-clock decomposition of a duration. Hours wrap at 24,
// minutes and seconds at 60.
type Fields struct {
	Hours   int64
	Minutes int64
	Seconds int64
}

// Split decomposes d into clock-face fields. Negative durations are treated as zero.
func Split(d time.Duration) Fields {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return Fields{
		Hours:   (ms / 3_600_000) % 24,
		Minutes: (ms / 60_000) % 60,
		Seconds: (ms / 1_000) % 60,
	}
}

func (f Fields) value(field Field) int64 {
	switch field {
	case Hours:
		return f.Hours
	case Minutes:
		return f.Minutes
	default:
		return f.Seconds
	}
}

type segment struct {
	literal string
	field   Field
	width   int
}

// Mask is a compiled template. It is immutable and safe for concurrent use.
type Mask struct {
	source   string
	segments []segment
}

// Compile parses source into a Mask. Every string is a valid mask.
func Compile(source string) *Mask {
	m := &Mask{source: source}
	last := 0
	for _, loc := range fieldPattern.FindAllStringIndex(source, -1) {
		if loc[0] > last {
			m.segments = append(m.segments, segment{literal: source[last:loc[0]]})
		}
		m.segments = append(m.segments, segment{
			field: Field(source[loc[0]]),
			width: loc[1] - loc[0],
		})
		last = loc[1]
	}
	if last < len(source) {
		m.segments = append(m.segments, segment{literal: source[last:]})
	}
	return m
}

// String returns the source template.
func (m *Mask) String() string {
	return m.source
}

// Fields lists the distinct fields referenced by the mask, in order of first use.
func (m *Mask) Fields() []Field {
	var out []Field
	seen := make(map[Field]bool)
	for _, seg := range m.segments {
		if seg.width == 0 || seen[seg.field] {
			continue
		}
		seen[seg.field] = true
		out = append(out, seg.field)
	}
	return out
}

// Render substitutes f into the mask.
func (m *Mask) Render(f Fields) string {
	var b strings.Builder
	b.Grow(len(m.source))
	for _, seg := range m.segments {
		if seg.width == 0 {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(pad(f.value(seg.field), seg.width))
	}
	return b.String()
}

// Format renders d through the mask.
func (m *Mask) Format(d time.Duration) string {
	return m.Render(Split(d))
}

// Format compiles source and renders d through it.
func Format(source string, d time.Duration) string {
	return Compile(source).Format(d)
}

func pad(v int64, width int) string {
	s := strconv.FormatInt(v, 10)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
