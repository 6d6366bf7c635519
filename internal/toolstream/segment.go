package toolstream

import "strings"

// Tag names of the two tool families embedded in model output.
const (
	tagCreateFile = "create_file"
	tagStrReplace = "str_replace"
)

// Invocation is one parsed file-edit instruction. The set is closed: adding
// a tool means adding a variant here and teaching Parse its tag, and every
// type switch over invocations is expected to handle all variants.
type Invocation interface{ invocation() }

// CreateFile writes a whole file, overwriting any previous content.
type CreateFile struct {
	Path    string
	Content string
}

// ReplaceText edits a file. An empty OldText means whole-file overwrite
// with NewText; otherwise OldText must match exactly one occurrence.
type ReplaceText struct {
	Path    string
	OldText string
	NewText string
}

func (CreateFile) invocation()  {}
func (ReplaceText) invocation() {}

// Segment is one contiguous span of the model's response: prose or a tool
// invocation.
type Segment interface{ segment() }

type TextSegment struct {
	Content string
}

// ToolSegment wraps an invocation. Complete stays false until the closing
// delimiter has been observed in the buffer; incomplete invocations exist
// for live display only and are never applied to disk.
type ToolSegment struct {
	Invocation Invocation
	Complete   bool
}

func (TextSegment) segment() {}
func (ToolSegment) segment() {}

// Parse splits the accumulated model output into an ordered segment list.
// It re-reads the whole buffer from scratch on every call; growing the
// buffer never changes a segment already reported complete, only the tail.
// streamOpen tells the parser whether more text may still arrive: on a
// closed stream an opening tag that never finished its attribute list is
// demoted to plain text instead of a forever-incomplete tool call.
func Parse(buffer string, streamOpen bool) []Segment {
	var segments []Segment
	rest := buffer
	for {
		start, name := nextTagStart(rest)
		if start < 0 {
			if strings.TrimSpace(rest) != "" {
				segments = append(segments, TextSegment{Content: rest})
			}
			return segments
		}
		if lead := rest[:start]; strings.TrimSpace(lead) != "" {
			segments = append(segments, TextSegment{Content: lead})
		}
		seg, openingClosed, consumed := scanTag(rest[start:], name)
		if consumed < 0 {
			// Unterminated tag: everything from the opener onward belongs
			// to it, and nothing after it can be parsed reliably yet.
			if !openingClosed && !streamOpen {
				if strings.TrimSpace(rest[start:]) != "" {
					segments = append(segments, TextSegment{Content: rest[start:]})
				}
				return segments
			}
			segments = append(segments, seg)
			return segments
		}
		segments = append(segments, seg)
		rest = rest[start+consumed:]
	}
}

// CompleteInvocations filters the parse result down to the invocations that
// are safe to apply.
func CompleteInvocations(segments []Segment) []Invocation {
	var out []Invocation
	for _, seg := range segments {
		tool, ok := seg.(ToolSegment)
		if !ok || !tool.Complete {
			continue
		}
		out = append(out, tool.Invocation)
	}
	return out
}

// nextTagStart locates the earliest opening delimiter of a known tool tag.
func nextTagStart(text string) (int, string) {
	best := -1
	name := ""
	for _, candidate := range [...]string{tagCreateFile, tagStrReplace} {
		idx := indexTagOpen(text, candidate)
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			name = candidate
		}
	}
	return best, name
}

// indexTagOpen finds "<name" followed by a byte that can legally extend an
// opening tag (whitespace, '>', '/') or by the end of the buffer.
func indexTagOpen(text, name string) int {
	needle := "<" + name
	from := 0
	for {
		idx := strings.Index(text[from:], needle)
		if idx < 0 {
			return -1
		}
		idx += from
		after := idx + len(needle)
		if after >= len(text) {
			return idx
		}
		switch text[after] {
		case ' ', '\t', '\r', '\n', '>', '/':
			return idx
		}
		from = idx + 1
	}
}

// scanTag parses one tag beginning at tag[0]. consumed is the byte count of
// the full tag span, or -1 when the tag is still streaming in; openingClosed
// reports whether the opening tag's '>' was observed.
func scanTag(tag, name string) (seg ToolSegment, openingClosed bool, consumed int) {
	attrs, bodyStart, selfClosed := scanOpeningTag(tag, name)
	if name == tagCreateFile {
		return scanCreateFile(tag, attrs, bodyStart, selfClosed)
	}
	return scanStrReplace(tag, attrs, bodyStart, selfClosed)
}

func scanCreateFile(tag string, attrs map[string]string, bodyStart int, selfClosed bool) (ToolSegment, bool, int) {
	inv := CreateFile{Path: attrs["path"]}
	if bodyStart < 0 {
		return ToolSegment{Invocation: inv}, false, -1
	}
	if selfClosed {
		return ToolSegment{Invocation: inv, Complete: true}, true, bodyStart
	}
	closer := "</" + tagCreateFile + ">"
	end := strings.Index(tag[bodyStart:], closer)
	if end < 0 {
		inv.Content = tag[bodyStart:]
		return ToolSegment{Invocation: inv}, true, -1
	}
	inv.Content = tag[bodyStart : bodyStart+end]
	return ToolSegment{Invocation: inv, Complete: true}, true, bodyStart + end + len(closer)
}

func scanStrReplace(tag string, attrs map[string]string, bodyStart int, selfClosed bool) (ToolSegment, bool, int) {
	oldStr, explicit := attrs["old_str"]
	inv := ReplaceText{Path: attrs["path"], OldText: oldStr, NewText: attrs["new_str"]}
	if bodyStart < 0 {
		return ToolSegment{Invocation: inv}, false, -1
	}
	if selfClosed {
		return ToolSegment{Invocation: inv, Complete: true}, true, bodyStart
	}
	closer := "</" + tagStrReplace + ">"
	if explicit {
		// Attribute form: self-contained once the opening tag closes, so it
		// is complete as soon as '>' is seen. When a matching closer follows
		// before any other tool tag, the span through it (a redundant body)
		// is swallowed; an explicit old/new pair always wins over reading
		// the same tag as a whole-file overwrite.
		rest := tag[bodyStart:]
		closerAt := strings.Index(rest, closer)
		openerAt, _ := nextTagStart(rest)
		consumed := bodyStart
		if closerAt >= 0 && (openerAt < 0 || closerAt < openerAt) {
			consumed += closerAt + len(closer)
		}
		return ToolSegment{Invocation: inv, Complete: true}, true, consumed
	}
	end := strings.Index(tag[bodyStart:], closer)
	if end < 0 {
		inv.NewText = tag[bodyStart:]
		return ToolSegment{Invocation: inv}, true, -1
	}
	inv.NewText = tag[bodyStart : bodyStart+end]
	return ToolSegment{Invocation: inv, Complete: true}, true, bodyStart + end + len(closer)
}

// scanOpeningTag reads attributes until the opening tag's terminator.
// bodyStart is the index just past '>' (or "/>"), or -1 when the buffer
// ends inside the opening tag; partially received attribute values are
// still recorded so live display has something to show.
func scanOpeningTag(tag, name string) (map[string]string, int, bool) {
	attrs := map[string]string{}
	i := 1 + len(name)
	for {
		for i < len(tag) && isSpace(tag[i]) {
			i++
		}
		if i >= len(tag) {
			return attrs, -1, false
		}
		switch tag[i] {
		case '>':
			return attrs, i + 1, false
		case '/':
			if i+1 >= len(tag) {
				return attrs, -1, false
			}
			if tag[i+1] == '>' {
				return attrs, i + 2, true
			}
			i++
		default:
			key, value, next, ok := scanAttr(tag, i)
			if !ok {
				if key != "" {
					attrs[key] = value
				}
				return attrs, -1, false
			}
			if key == "" {
				i++
				continue
			}
			attrs[key] = value
			i = next
		}
	}
}

// scanAttr parses one name="value" pair starting at i. Values are literal
// bytes up to the next double quote; there is no escaping in this protocol.
func scanAttr(tag string, i int) (string, string, int, bool) {
	start := i
	for i < len(tag) && isAttrNameByte(tag[i]) {
		i++
	}
	key := tag[start:i]
	if key == "" {
		return "", "", i, true
	}
	for i < len(tag) && isSpace(tag[i]) {
		i++
	}
	if i >= len(tag) {
		return key, "", 0, false
	}
	if tag[i] != '=' {
		return key, "", i, true
	}
	i++
	for i < len(tag) && isSpace(tag[i]) {
		i++
	}
	if i >= len(tag) {
		return key, "", 0, false
	}
	if tag[i] != '"' {
		start = i
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '>' {
			i++
		}
		return key, tag[start:i], i, true
	}
	i++
	end := strings.IndexByte(tag[i:], '"')
	if end < 0 {
		return key, tag[i:], 0, false
	}
	return key, tag[i : i+end], i + end + 1, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isAttrNameByte(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
