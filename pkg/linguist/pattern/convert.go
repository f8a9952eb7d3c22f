package pattern

import "strings"

const hexClass = "0-9a-fA-F"

// ConvertRuby rewrites the Ruby-only parts of a regex so regexp2 accepts it
// with the same meaning:
//
//   - inline flag groups: Ruby's m (dot matches newline) becomes s;
//   - \h and \H (hex digit shorthands) become explicit classes.
//
// ^ and $ are always line anchors in Ruby; Compile sets regexp2.Multiline for that.
func ConvertRuby(src string) string {
	var b strings.Builder
	b.Grow(len(src) + 8)
	inClass := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			next := src[i+1]
			i++
			switch {
			case next == 'h' && inClass:
				b.WriteString(hexClass)
			case next == 'h':
				b.WriteString("[" + hexClass + "]")
			case next == 'H' && !inClass:
				b.WriteString("[^" + hexClass + "]")
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
		case c == '[' && !inClass:
			inClass = true
			b.WriteByte(c)
			if i+1 < len(src) && src[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
			if i+1 < len(src) && src[i+1] == ']' {
				b.WriteString(`\]`)
				i++
			}
		case c == ']' && inClass:
			inClass = false
			b.WriteByte(c)
		case c == '(' && !inClass && i+2 < len(src) && src[i+1] == '?':
			j := i + 2
			for j < len(src) && strings.IndexByte("imx-", src[j]) >= 0 {
				j++
			}
			if j > i+2 && j < len(src) && (src[j] == ')' || src[j] == ':') {
				b.WriteString("(?")
				b.WriteString(strings.ReplaceAll(src[i+2:j], "m", "s"))
				i = j - 1
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
