package ofx

import (
	"regexp"
	"strings"
)

// The version 1 dialect allows leaf elements to omit their closing tag:
// <NAME>John Doe is implicitly closed by the next tag. NormalizeSGML turns
// that dialect into well-formed XML by running a small tokenizer over the
// stream and synthesizing the missing closes, so tolerance lives here and
// the tree parser can stay strict.

type tokenKind int

const (
	tokOpen tokenKind = iota
	tokClose
	tokText
)

type sgmlToken struct {
	kind tokenKind
	name string // tag name for tokOpen/tokClose
	text string // raw text for tokText
}

// tokenizeSGML splits the stream into open-tag, close-tag and text events.
// Anything before the first '<' (the v1 header block) is dropped.
// Processing instructions and markup declarations are dropped as well.
func tokenizeSGML(s string) []sgmlToken {
	var tokens []sgmlToken

	pos := strings.IndexByte(s, '<')
	for pos >= 0 && pos < len(s) {
		end := strings.IndexByte(s[pos:], '>')
		if end < 0 {
			// trailing junk without a tag close, treat as text
			text := strings.TrimSpace(s[pos+1:])
			if text != "" {
				tokens = append(tokens, sgmlToken{kind: tokText, text: text})
			}
			break
		}
		end += pos

		tag := strings.TrimSpace(s[pos+1 : end])
		switch {
		case tag == "" || tag[0] == '?' || tag[0] == '!':
			// ignore
		case tag[0] == '/':
			tokens = append(tokens, sgmlToken{kind: tokClose, name: sgmlTagName(tag[1:])})
		default:
			tokens = append(tokens, sgmlToken{kind: tokOpen, name: sgmlTagName(tag)})
		}

		next := strings.IndexByte(s[end:], '<')
		if next < 0 {
			if text := strings.TrimSpace(s[end+1:]); text != "" {
				tokens = append(tokens, sgmlToken{kind: tokText, text: text})
			}
			break
		}
		next += end

		if text := strings.TrimSpace(s[end+1 : next]); text != "" {
			tokens = append(tokens, sgmlToken{kind: tokText, text: text})
		}
		pos = next
	}

	return tokens
}

// sgmlTagName strips anything after the name proper. OFX tags carry no
// attributes, but broken producers sometimes leave whitespace inside the
// delimiters.
func sgmlTagName(tag string) string {
	if i := strings.IndexAny(tag, " \t\r\n"); i >= 0 {
		return tag[:i]
	}
	return tag
}

// NormalizeSGML converts loose OFX v1 SGML into well-formed XML text.
// Aggregate order and nesting are preserved exactly; the function never
// fails, it produces a best-effort document and leaves rejection of
// genuinely unparseable input to the XML parser.
func NormalizeSGML(s string) string {
	tokens := tokenizeSGML(s)

	// an open tag denotes an aggregate only if a matching close appears
	// later in the stream; otherwise it is a leaf and is closed as soon
	// as its text ends
	pendingCloses := make(map[string]int)
	for _, t := range tokens {
		if t.kind == tokClose {
			pendingCloses[t.name]++
		}
	}

	var out strings.Builder
	var stack []string

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]

		switch t.kind {
		case tokOpen:
			if pendingCloses[t.name] > 0 {
				stack = append(stack, t.name)
				out.WriteString("<" + t.name + ">")
				continue
			}

			// leaf: gather the text, if any, and synthesize the close
			text := ""
			for i+1 < len(tokens) && tokens[i+1].kind == tokText {
				if text != "" {
					text += " "
				}
				text += tokens[i+1].text
				i++
			}
			out.WriteString("<" + t.name + ">" + escapeText(text) + "</" + t.name + ">")

		case tokClose:
			pendingCloses[t.name]--

			found := false
			for j := len(stack) - 1; j >= 0; j-- {
				if stack[j] == t.name {
					found = true
					break
				}
			}
			if !found {
				continue // stray close, drop it
			}
			// close any aggregates left open above the matching one
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				out.WriteString("</" + top + ">")
				if top == t.name {
					break
				}
			}

		case tokText:
			// stray text directly inside an aggregate, keep it escaped
			out.WriteString(escapeText(t.text))
		}
	}

	for len(stack) > 0 {
		out.WriteString("</" + stack[len(stack)-1] + ">")
		stack = stack[:len(stack)-1]
	}

	return out.String()
}

var entityPattern = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)

// escapeText makes element text safe for an XML parser. Ampersands that do
// not already begin an entity reference are escaped, as are quotes and
// apostrophes; tag delimiters never reach this function because the
// tokenizer splits on them.
func escapeText(s string) string {
	if !strings.ContainsAny(s, `&"'>`) {
		return s
	}

	var out strings.Builder
	out.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			if loc := entityPattern.FindStringIndex(s[i:]); loc != nil && loc[0] == 0 {
				out.WriteString(s[i : i+loc[1]])
				i += loc[1] - 1
			} else {
				out.WriteString("&amp;")
			}
		case '"':
			out.WriteString("&quot;")
		case '\'':
			out.WriteString("&apos;")
		case '>':
			out.WriteString("&gt;")
		default:
			out.WriteByte(s[i])
		}
	}

	return out.String()
}
