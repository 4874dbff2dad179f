package query

import (
	"strings"
	"unicode"
)

const readOnlyKeyword = "SELECT"

// IsReadOnly reports whether stmt, after leading whitespace and comments,
// starts with the SELECT keyword as a whole word.
func IsReadOnly(stmt string) bool {
	s := stripLeading(stmt)
	n := len(readOnlyKeyword)
	if len(s) < n || !strings.EqualFold(s[:n], readOnlyKeyword) {
		return false
	}
	if len(s) == n {
		return true
	}
	r := rune(s[n])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// stripLeading removes whitespace and line or block comments from the
// front of s. An unterminated block comment consumes the rest.
func stripLeading(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "//"), strings.HasPrefix(s, "#"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}

// lexMode selects how quotes and comments are read. Backends disagree on
// backslash escapes and on # and // comments.
type lexMode struct {
	backslash bool
	hashLine  bool
}

var lexModes = []lexMode{{}, {backslash: true}, {hashLine: true}, {backslash: true, hashLine: true}}

// SingleStatement reports whether stmt holds at most one statement: a
// semicolon may only be followed by whitespace and comments. The text has
// to read as one statement under every lexing mode, and an unterminated
// quote counts as more than one.
func SingleStatement(stmt string) bool {
	for _, m := range lexModes {
		if !m.single(stmt) {
			return false
		}
	}
	return true
}

func (m lexMode) single(s string) bool {
	ended := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			if ended {
				return false
			}
			j := m.closingQuote(s, i)
			if j < 0 {
				return false
			}
			i = j
		case strings.HasPrefix(s[i:], "--"),
			m.hashLine && (c == '#' || strings.HasPrefix(s[i:], "//")):
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				return true
			}
			i += j
		case strings.HasPrefix(s[i:], "/*"):
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return true
			}
			i += j + 3
		case c == ';':
			ended = true
		case !isSpace(c):
			if ended {
				return false
			}
		}
	}
	return true
}

// closingQuote returns the index of the quote closing the one at open, or
// -1 if it never closes. A doubled quote reads as close and reopen.
func (m lexMode) closingQuote(s string, open int) int {
	q := s[open]
	for j := open + 1; j < len(s); j++ {
		switch {
		case m.backslash && s[j] == '\\':
			j++
		case s[j] == q:
			return j
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
