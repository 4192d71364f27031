/*
Package pairtree maps arbitrary string keys to nested directory paths.

Storing every object of a large store in one directory is problematic for
most file systems, so keys are spread over a tree. The scheme is the
pair-tree one: a key is first "cleaned" into a string of file-name safe
characters and the cleaned string is then cut into two-character
segments ("shorties"), each of them becoming one directory level. The final
segment may have a single character.

Cleaning is reversible. Every byte outside visible ASCII (0x21-0x7e) and the
characters

	" * + , < = > ? ^ |

are written as ^hh (two lower-case hex digits). After that the remaining
path-unsafe characters are substituted one to one:

	/ -> =
	: -> +
	. -> ,

For example the key "ark:/13030/xt12t3" is cleaned to "ark+=13030=xt12t3"
and stored under

	ar/k+/=1/30/30/=x/t1/2t/3/

Directory names longer than two characters are never produced by Split, so a
store may keep its own files and directories (encapsulation names) in the
tree without clashing with keys sharing a prefix.
*/
package pairtree

import (
	"errors"
	"fmt"
	"strings"
)

// ShortyLen is the number of cleaned characters per directory level.
const ShortyLen = 2

// ErrMalformed is returned by Unclean for strings that Clean cannot produce.
var ErrMalformed = errors.New("pairtree: malformed cleaned identifier")

const hexDigits = "0123456789abcdef"

func needsEscape(c byte) bool {
	if c < 0x21 || c > 0x7e {
		return true
	}
	switch c {
	case '"', '*', '+', ',', '<', '=', '>', '?', '^', '|':
		return true
	}
	return false
}

// Clean converts id into its file-name safe form.
func Clean(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case needsEscape(c):
			b.WriteByte('^')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		case c == '/':
			b.WriteByte('=')
		case c == ':':
			b.WriteByte('+')
		case c == '.':
			b.WriteByte(',')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unclean reverses Clean.
func Unclean(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '^':
			if i+2 >= len(s) {
				return "", fmt.Errorf("%w: truncated escape at %d", ErrMalformed, i)
			}
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if !ok1 || !ok2 {
				return "", fmt.Errorf("%w: bad escape %q", ErrMalformed, s[i:i+3])
			}
			b.WriteByte(hi<<4 | lo)
			i += 2
		case '=':
			b.WriteByte('/')
		case '+':
			b.WriteByte(':')
		case ',':
			b.WriteByte('.')
		default:
			if needsEscape(c) || c == '/' || c == ':' || c == '.' {
				return "", fmt.Errorf("%w: unexpected character %q", ErrMalformed, c)
			}
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Split cuts a cleaned identifier into ShortyLen-sized segments.
func Split(cleaned string) []string {
	segs := make([]string, 0, (len(cleaned)+ShortyLen-1)/ShortyLen)
	for len(cleaned) > ShortyLen {
		segs = append(segs, cleaned[:ShortyLen])
		cleaned = cleaned[ShortyLen:]
	}
	if cleaned != "" {
		segs = append(segs, cleaned)
	}
	return segs
}

// PathFor returns the directory segments for id. The result is empty only
// for an empty id.
func PathFor(id string) []string {
	return Split(Clean(id))
}

// Join recovers the identifier from the segments produced by PathFor.
func Join(segs []string) (string, error) {
	for _, s := range segs {
		if !IsShorty(s) {
			return "", fmt.Errorf("%w: segment %q is not a shorty", ErrMalformed, s)
		}
	}
	return Unclean(strings.Join(segs, ""))
}

// IsShorty reports whether a directory name can be a key segment.
func IsShorty(name string) bool {
	return name != "" && len(name) <= ShortyLen
}
