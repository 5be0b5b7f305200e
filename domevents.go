package mlang

import (
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// WalkDocument drives a validation session from a parsed XML DOM, translating
// elements, attributes and text nodes into the structural event protocol and
// calling Finish at the end. It is the reference implementation of the
// upstream-parser contract: the validation core itself never reads markup.
//
// Namespace declarations are skipped; whitespace-only text nodes are not
// reported, matching the usual element-content whitespace rules.
func WalkDocument(doc xmldom.Document, s *Session) []Violation {
	if doc == nil {
		return s.Finish()
	}
	if root := doc.DocumentElement(); root != nil {
		walkElement(root, s)
	}
	return s.Finish()
}

const textNode = 3 // DOM TEXT_NODE

func walkElement(elem xmldom.Element, s *Session) {
	line, col, offset := elem.Position()
	s.OnOpen(string(elem.LocalName()), domAttrs(elem), Position{
		Line:   line,
		Column: col,
		Offset: int(offset),
	})

	nodes := elem.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		node := nodes.Item(i)
		if node == nil {
			continue
		}
		switch node.NodeType() {
		case textNode:
			if strings.TrimSpace(string(node.NodeValue())) == "" {
				continue
			}
			s.OnText(Position{})
		case 1: // ELEMENT_NODE
			if child, ok := node.(xmldom.Element); ok {
				walkElement(child, s)
			}
		}
	}

	s.OnClose(Position{Line: line, Column: col, Offset: int(offset)})
}

func domAttrs(elem xmldom.Element) []DocumentAttr {
	attrs := elem.Attributes()
	out := make([]DocumentAttr, 0, attrs.Length())
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		local := string(attr.LocalName())
		ns := string(attr.NamespaceURI())
		if ns == "http://www.w3.org/2000/xmlns/" || ns == "xmlns" || local == "xmlns" {
			continue
		}
		line, col, offset := attr.Position()
		out = append(out, DocumentAttr{
			Name:  local,
			Value: string(attr.NodeValue()),
			Position: Position{
				Line:   line,
				Column: col,
				Offset: int(offset),
			},
		})
	}
	return out
}
