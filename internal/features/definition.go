package features

import (
	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"github.com/milesziemer/smithy-language-server/internal/document"
	"go.lsp.dev/uri"

	"go.lsp.dev/protocol"
)

// Definition resolves the shape-id token under pos in doc to the
// location where that shape is declared. Returns nil if the token
// doesn't resolve, or if the shape has no source location (a
// SourceLocation.NONE shape has no file to jump to).
func Definition(doc *document.Document, model *assembly.Model, pos protocol.Position) *protocol.Location {
	id := doc.CopyDocumentID(document.Position{Line: int(pos.Line), Character: int(pos.Character)})
	if id == nil || model == nil {
		return nil
	}
	shape, ok := model.Shapes[id.Text]
	if !ok || shape.Location.IsNone() {
		return nil
	}
	line := shape.Location.Line
	if line > 0 {
		line--
	}
	return &protocol.Location{
		URI: uri.File(shape.Location.File),
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line)},
			End:   protocol.Position{Line: uint32(line)},
		},
	}
}

// DocumentSymbols lists every shape defined in path as a DocumentSymbol,
// for textDocument/documentSymbol / the outline view.
func DocumentSymbols(path string, model *assembly.Model) []protocol.DocumentSymbol {
	if model == nil {
		return nil
	}
	var out []protocol.DocumentSymbol
	for id, shape := range model.Shapes {
		if shape.Location.File != path {
			continue
		}
		line := shape.Location.Line
		if line > 0 {
			line--
		}
		rng := protocol.Range{
			Start: protocol.Position{Line: uint32(line)},
			End:   protocol.Position{Line: uint32(line)},
		}
		out = append(out, protocol.DocumentSymbol{
			Name:           id,
			Detail:         shape.Type,
			Kind:           protocol.SymbolKindStruct,
			Range:          rng,
			SelectionRange: rng,
		})
	}
	return out
}
