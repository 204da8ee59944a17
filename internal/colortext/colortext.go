// Package colortext parses legacy inline color directives into styled runs
// and renders per-character color gradients.
package colortext

import (
	"fmt"
	"math"
	"strings"
)

// DefaultColor is the color applied to text with no directive in effect.
const DefaultColor = "#FFFFFF"

const (
	ampersand   = '&'
	sectionSign = '§'
)

// Run is a contiguous piece of text rendered with one color and style set.
type Run struct {
	Text          string `json:"text"`
	Color         string `json:"color"`
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
}

// Text is a sequence of styled runs forming one renderable message.
type Text []Run

// Plain returns the text content with all styling stripped.
func (t Text) Plain() string {
	var b strings.Builder
	for _, r := range t {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Append returns t with other's runs appended.
func (t Text) Append(other Text) Text {
	return append(t, other...)
}

// Solid wraps text in a single run of the given color. Empty text yields an
// empty Text so callers can join results without blank runs.
func Solid(text, color string) Text {
	if text == "" {
		return nil
	}
	return Text{{Text: text, Color: color}}
}

// ParseHex parses a "#RRGGBB" color string into its channels.
func ParseHex(s string) (r, g, b uint8, err error) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", s)
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(strings.ToUpper(s[1:]), "%02X%02X%02X", &rv, &gv, &bv); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", s)
	}
	return uint8(rv), uint8(gv), uint8(bv), nil
}

// NormalizeHex validates a hex color and returns it in canonical "#RRGGBB"
// upper-case form.
func NormalizeHex(s string) (string, error) {
	r, g, b, err := ParseHex(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("#%02X%02X%02X", r, g, b), nil
}

// legacyPalette maps single-character legacy color codes to hex colors.
var legacyPalette = map[rune]string{
	'0': "#000000",
	'1': "#0000AA",
	'2': "#00AA00",
	'3': "#00AAAA",
	'4': "#AA0000",
	'5': "#AA00AA",
	'6': "#FFAA00",
	'7': "#AAAAAA",
	'8': "#555555",
	'9': "#5555FF",
	'a': "#55FF55",
	'b': "#55FFFF",
	'c': "#FF5555",
	'd': "#FF55FF",
	'e': "#FFFF55",
	'f': "#FFFFFF",
}

func isDirectivePrefix(r rune) bool {
	return r == ampersand || r == sectionSign
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

type parseState struct {
	runs          Text
	current       strings.Builder
	color         string
	bold          bool
	italic        bool
	underline     bool
	strikethrough bool
}

func (p *parseState) flush() {
	if p.current.Len() == 0 {
		return
	}
	p.runs = append(p.runs, Run{
		Text:          p.current.String(),
		Color:         p.color,
		Bold:          p.bold,
		Italic:        p.italic,
		Underline:     p.underline,
		Strikethrough: p.strikethrough,
	})
	p.current.Reset()
}

// Parse converts a string with inline "&"/"§" directives into styled runs.
// Supported directives: hex colors (&#RRGGBB), extended per-character hex
// (§x§R§R§G§G§B§B), the 16 legacy palette codes, the styles l/o/n/m, and
// the reset code r. Unknown directive characters are kept as literal text.
func Parse(text string) Text {
	return ParseWithDefault(text, DefaultColor)
}

// ParseWithDefault is Parse with an explicit starting color, used when the
// parsed text continues an already-colored context.
func ParseWithDefault(text, startColor string) Text {
	runs, _ := ParseSegment(text, startColor)
	return runs
}

// ParseSegment parses like ParseWithDefault and additionally reports the
// color in effect at the end of the input, so callers stitching multiple
// segments can carry color state across segment boundaries even when a
// directive is the last thing in a segment.
func ParseSegment(text, startColor string) (Text, string) {
	if text == "" {
		return nil, startColor
	}

	p := parseState{color: startColor}
	runes := []rune(text)

	i := 0
	for i < len(runes) {
		r := runes[i]
		if !isDirectivePrefix(r) || i+1 >= len(runes) {
			p.current.WriteRune(r)
			i++
			continue
		}

		next := runes[i+1]

		// Hex directive: prefix + "#RRGGBB".
		if next == '#' && i+8 <= len(runes) {
			if hex, ok := readHex(runes[i+2 : i+8]); ok {
				p.flush()
				p.color = hex
				i += 8
				continue
			}
		}

		// Extended hex: prefix + x + six prefixed hex digits.
		if (next == 'x' || next == 'X') && i+14 <= len(runes) {
			if hex, ok := readExtendedHex(runes[i+2 : i+14]); ok {
				p.flush()
				p.color = hex
				i += 14
				continue
			}
		}

		lower := next
		if lower >= 'A' && lower <= 'Z' {
			lower += 'a' - 'A'
		}

		if hex, ok := legacyPalette[lower]; ok {
			p.flush()
			p.color = hex
			i += 2
			continue
		}

		switch lower {
		case 'l':
			p.flush()
			p.bold = true
		case 'o':
			p.flush()
			p.italic = true
		case 'n':
			p.flush()
			p.underline = true
		case 'm':
			p.flush()
			p.strikethrough = true
		case 'r':
			p.flush()
			p.color = DefaultColor
			p.bold = false
			p.italic = false
			p.underline = false
			p.strikethrough = false
		default:
			// Not a directive; keep the prefix as literal text.
			p.current.WriteRune(r)
			i++
			continue
		}
		i += 2
	}

	p.flush()
	return p.runs, p.color
}

// readHex interprets six runes as RRGGBB.
func readHex(digits []rune) (string, bool) {
	if len(digits) != 6 {
		return "", false
	}
	var b strings.Builder
	b.WriteByte('#')
	for _, d := range digits {
		if !isHexDigit(d) {
			return "", false
		}
		b.WriteRune(d)
	}
	return strings.ToUpper(b.String()), true
}

// readExtendedHex interprets twelve runes as six prefix+digit pairs.
func readExtendedHex(pairs []rune) (string, bool) {
	if len(pairs) != 12 {
		return "", false
	}
	var b strings.Builder
	b.WriteByte('#')
	for j := 0; j < 12; j += 2 {
		if !isDirectivePrefix(pairs[j]) || !isHexDigit(pairs[j+1]) {
			return "", false
		}
		b.WriteRune(pairs[j+1])
	}
	return strings.ToUpper(b.String()), true
}

// Gradient renders text with one run per character, colors linearly
// interpolated from startHex to endHex by position. Single-character text
// renders solid in the start color. Invalid colors fall back to a solid
// default-colored run.
func Gradient(text, startHex, endHex string) Text {
	if text == "" {
		return nil
	}

	sr, sg, sb, err := ParseHex(startHex)
	if err != nil {
		return Solid(text, DefaultColor)
	}

	runes := []rune(text)
	if len(runes) == 1 {
		return Solid(text, fmt.Sprintf("#%02X%02X%02X", sr, sg, sb))
	}

	er, eg, eb, err := ParseHex(endHex)
	if err != nil {
		return Solid(text, fmt.Sprintf("#%02X%02X%02X", sr, sg, sb))
	}

	out := make(Text, 0, len(runes))
	last := float64(len(runes) - 1)
	for i, r := range runes {
		ratio := float64(i) / last
		out = append(out, Run{
			Text:  string(r),
			Color: fmt.Sprintf("#%02X%02X%02X", lerp(sr, er, ratio), lerp(sg, eg, ratio), lerp(sb, eb, ratio)),
		})
	}
	return out
}

// lerp interpolates one color channel, rounding half up.
func lerp(from, to uint8, ratio float64) uint8 {
	return uint8(math.Round(float64(from) + (float64(to)-float64(from))*ratio))
}
