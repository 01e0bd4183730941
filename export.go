package npk

import (
	"encoding/xml"
	"strings"
)

// ExportXML renders a decoded forest as indented XML text, one stanza per
// root separated by a newline. Attributes keep their decoded order, childless
// elements self-close, and nesting is indented four spaces per level. The
// output carries no XML declaration.
func ExportXML(roots []*Element) string {
	var sb strings.Builder
	for _, root := range roots {
		writeElement(&sb, root, 0)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func writeElement(sb *strings.Builder, el *Element, depth int) {
	pad := strings.Repeat("    ", depth)
	sb.WriteString(pad)
	sb.WriteByte('<')
	sb.WriteString(el.Name)
	if el.Attrs != nil {
		for name, value := range el.Attrs.AllFromFront() {
			sb.WriteByte(' ')
			sb.WriteString(name)
			sb.WriteString(`="`)
			xml.EscapeText(sb, []byte(value))
			sb.WriteByte('"')
		}
	}
	if len(el.Children) == 0 {
		sb.WriteString(" />")
		return
	}
	sb.WriteByte('>')
	for _, child := range el.Children {
		sb.WriteByte('\n')
		writeElement(sb, child, depth+1)
	}
	sb.WriteByte('\n')
	sb.WriteString(pad)
	sb.WriteString("</")
	sb.WriteString(el.Name)
	sb.WriteByte('>')
}
