package xmltree

import "strings"

const (
	// AttributesKey holds an element's attributes. It is not a valid XML
	// name, so no child element can collide with it.
	AttributesKey = "@attributes"
	// TextKey holds the text of an element that also has attributes or
	// child elements.
	TextKey = "#text"
)

// Convert turns a node into a plain value:
//
//   - a text node, or an element without attributes whose only content is
//     text, becomes that text (an empty element becomes "");
//   - any other element or document becomes a map[string]any keyed by child
//     element name, with attributes under AttributesKey;
//   - a name repeated among siblings becomes a []any in document order.
//
// Whitespace-only text between elements is dropped.
func Convert(n *Node) any {
	if n == nil {
		return nil
	}
	if n.Kind == TextNode {
		return n.Text
	}
	if n.Kind == ElementNode && len(n.Attrs) == 0 {
		if text, ok := textOnly(n); ok {
			return text
		}
	}

	out := make(map[string]any)
	if len(n.Attrs) > 0 {
		attrs := make(map[string]string, len(n.Attrs))
		for _, a := range n.Attrs {
			attrs[a.Name] = a.Value
		}
		out[AttributesKey] = attrs
	}

	for _, c := range n.Children {
		name := c.Name
		if c.Kind == TextNode {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			name = TextKey
		}

		v := Convert(c)
		existing, ok := out[name]
		if !ok {
			out[name] = v
			continue
		}
		if list, isList := existing.([]any); isList {
			out[name] = append(list, v)
		} else {
			out[name] = []any{existing, v}
		}
	}

	return out
}

func textOnly(n *Node) (string, bool) {
	var b strings.Builder
	for _, c := range n.Children {
		if c.Kind != TextNode {
			return "", false
		}
		b.WriteString(c.Text)
	}
	return b.String(), true
}

// Lookup walks a converted value by element names. A list met on the way
// resolves to its first entry.
func Lookup(v any, path ...string) (any, bool) {
	cur := v
	for _, key := range path {
		if list, ok := cur.([]any); ok {
			if len(list) == 0 {
				return nil, false
			}
			cur = list[0]
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupString is Lookup for a leaf. Surrounding whitespace is trimmed.
func LookupString(v any, path ...string) (string, bool) {
	found, ok := Lookup(v, path...)
	if !ok {
		return "", false
	}
	if list, isList := found.([]any); isList && len(list) > 0 {
		found = list[0]
	}
	s, ok := found.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}
