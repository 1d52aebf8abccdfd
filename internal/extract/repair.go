package extract

import "strings"

// repairs returns candidate rewrites to try, in order, after a strict parse
// of candidate has failed:
//
//  1. close every container left open (innermost first) after dropping a
//     dangling separator, closing an unterminated string if needed;
//  2. cut back to the last complete element of the outermost container and
//     close it.
func repairs(candidate string, shape Shape) []string {
	var out []string
	if closed := closeOpen(candidate, shape); closed != "" && closed != candidate {
		out = append(out, closed)
	}
	if cut := cutToLastElement(candidate); cut != "" && cut != candidate {
		out = append(out, cut)
	}
	return out
}

// scanState walks JSON text tracking strings and bracket nesting.
type scanState struct {
	stack    []byte
	inString bool
	escaped  bool
}

func (st *scanState) step(c byte) {
	if st.inString {
		switch {
		case st.escaped:
			st.escaped = false
		case c == '\\':
			st.escaped = true
		case c == '"':
			st.inString = false
		}
		return
	}
	switch c {
	case '"':
		st.inString = true
	case '{', '[':
		st.stack = append(st.stack, c)
	case '}', ']':
		if n := len(st.stack); n > 0 && st.stack[n-1] == opener(c) {
			st.stack = st.stack[:n-1]
		}
	}
}

func opener(closer byte) byte {
	if closer == '}' {
		return '{'
	}
	return '['
}

func closer(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

func closeOpen(s string, shape Shape) string {
	var st scanState
	for i := 0; i < len(s); i++ {
		st.step(s[i])
	}

	var b strings.Builder
	if st.inString {
		b.WriteString(s)
		if st.escaped {
			// Drop the lone backslash so the closing quote is not escaped.
			trimmed := b.String()
			b.Reset()
			b.WriteString(trimmed[:len(trimmed)-1])
		}
		b.WriteByte('"')
	} else {
		b.WriteString(strings.TrimRight(s, " \t\r\n,"))
	}

	if len(st.stack) == 0 {
		// Balanced already: only a trailing separator could be at fault.
		return b.String()
	}
	for i := len(st.stack) - 1; i >= 0; i-- {
		b.WriteByte(closer(st.stack[i]))
	}

	out := b.String()
	// An unknown shape is closed by whatever opened it; a known shape whose
	// outer container does not match cannot be repaired into it.
	switch shape {
	case ShapeList:
		if st.stack[0] != '[' {
			return ""
		}
	case ShapeRecord:
		if st.stack[0] != '{' {
			return ""
		}
	}
	return out
}

// cutToLastElement truncates s after the last element of the outermost
// container that is known to be complete.
func cutToLastElement(s string) string {
	var st scanState
	last := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		wasInString := st.inString
		st.step(c)
		if wasInString {
			continue
		}
		switch {
		case (c == '}' || c == ']') && len(st.stack) == 1:
			last = i + 1
		case c == ',' && len(st.stack) == 1:
			last = i
		}
	}
	if last < 0 || len(s) == 0 {
		return ""
	}
	outer := strings.TrimLeft(s, " \t\r\n")
	if outer == "" || (outer[0] != '[' && outer[0] != '{') {
		return ""
	}
	head := strings.TrimRight(s[:last], " \t\r\n,")
	return head + string(closer(outer[0]))
}
