// Package xmltemplate fills the inner text of named elements in a fixed XML
// document while leaving every other byte of the document untouched.
package xmltemplate

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

type span struct {
	start       int
	end         int
	selfClosing bool
}

// Template is a parsed XML document indexed by element name. Only the first
// element carrying a given name is addressable.
type Template struct {
	src   string
	spans map[string]span
}

// Parse indexes src. Element names are matched as written, including any
// namespace prefix.
func Parse(src string) (*Template, error) {
	type open struct {
		name  string
		start int
		inner int
		first bool
	}

	t := &Template{src: src, spans: make(map[string]span)}
	claimed := make(map[string]bool)
	var stack []open

	dec := xml.NewDecoder(strings.NewReader(src))
	for {
		before := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse template: %w", err)
		}
		after := int(dec.InputOffset())

		switch el := tok.(type) {
		case xml.StartElement:
			name := qualifiedName(el.Name)
			first := !claimed[name]
			claimed[name] = true
			stack = append(stack, open{name: name, start: before, inner: after, first: first})
		case xml.EndElement:
			name := qualifiedName(el.Name)
			if len(stack) == 0 || stack[len(stack)-1].name != name {
				return nil, fmt.Errorf("parse template: unexpected </%s> at offset %d", name, before)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !top.first {
				continue
			}
			if before == after {
				// synthetic end of <name/>
				t.spans[name] = span{start: top.start, end: top.inner, selfClosing: true}
			} else {
				t.spans[name] = span{start: top.inner, end: before}
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("parse template: <%s> is never closed", stack[len(stack)-1].name)
	}

	return t, nil
}

// Has reports whether the template contains an element named tag.
func (t *Template) Has(tag string) bool {
	_, ok := t.spans[tag]
	return ok
}

// Render returns the document with the inner text of each tag in updates
// replaced by the escaped value. Tags missing from the document are ignored.
// When two updated elements are nested the outer one wins.
func (t *Template) Render(updates map[string]string) string {
	type edit struct {
		span
		tag  string
		text string
	}

	edits := make([]edit, 0, len(updates))
	for tag, value := range updates {
		s, ok := t.spans[tag]
		if !ok {
			continue
		}
		edits = append(edits, edit{span: s, tag: tag, text: escaper.Replace(value)})
	}
	if len(edits) == 0 {
		return t.src
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.Grow(len(t.src))
	pos := 0
	for _, e := range edits {
		if e.start < pos {
			continue
		}
		b.WriteString(t.src[pos:e.start])
		if e.selfClosing {
			b.WriteString("<" + e.tag + ">" + e.text + "</" + e.tag + ">")
		} else {
			b.WriteString(e.text)
		}
		pos = e.end
	}
	b.WriteString(t.src[pos:])

	return b.String()
}

// Render parses template and applies updates in one step. An empty update set
// returns the template unchanged.
func Render(template string, updates map[string]string) (string, error) {
	if len(updates) == 0 {
		return template, nil
	}
	t, err := Parse(template)
	if err != nil {
		return "", err
	}
	return t.Render(updates), nil
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
