// Package mdv2 builds text that is safe to send to Telegram with
// ParseMode="MarkdownV2".
package mdv2

import "strings"

// MD represents MarkdownV2 text that is safe to pass to Telegram.
// Values of type MD should be treated as already-escaped.
type MD string

func (m MD) String() string { return string(m) }

// reserved is the set of characters MarkdownV2 treats as formatting
// control codes outside of entities.
const reserved = "_*[]()~`>#+-=|{}.!"

// Esc escapes text for Telegram MarkdownV2 parse mode by prefixing every
// reserved character with a backslash. All other characters, including
// non-ASCII, pass through verbatim.
//
// Esc is NOT idempotent: escaping already-escaped text double-escapes it.
// Escape exactly once, at the point where untrusted text enters a message.
func Esc(s string) MD {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 && strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return MD(b.String())
}

// Raw marks a string as already-safe MarkdownV2.
// Use sparingly.
func Raw(s string) MD { return MD(s) }

// Bold wraps escaped text in an asterisk pair.
func Bold(s string) MD { return "*" + Esc(s) + "*" }
