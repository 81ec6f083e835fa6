package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"github.com/milesziemer/smithy-language-server/internal/document"
	"go.lsp.dev/protocol"
)

// Hover builds a hover response for the shape-id token under pos in
// doc, resolving it against model. Returns nil if pos is not on a
// recognizable shape id or the id doesn't resolve to any shape.
func Hover(doc *document.Document, model *assembly.Model, pos protocol.Position) *protocol.Hover {
	id := doc.CopyDocumentID(document.Position{Line: int(pos.Line), Character: int(pos.Character)})
	if id == nil || model == nil {
		return nil
	}
	shape, ok := model.Shapes[id.Text]
	if !ok {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: renderShape(shape),
		},
		Range: toProtocolRange(id),
	}
}

func renderShape(shape *assembly.Shape) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```smithy\n%s %s\n```", shape.Type, shape.ID)
	if len(shape.Traits) == 0 {
		return b.String()
	}
	names := make([]string, 0, len(shape.Traits))
	for name := range shape.Traits {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("\n\nTraits: ")
	b.WriteString(strings.Join(names, ", "))
	return b.String()
}

func toProtocolRange(id *document.ID) *protocol.Range {
	return &protocol.Range{
		Start: protocol.Position{Line: uint32(id.Start.Line), Character: uint32(id.Start.Character)},
		End:   protocol.Position{Line: uint32(id.End.Line), Character: uint32(id.End.Character)},
	}
}
