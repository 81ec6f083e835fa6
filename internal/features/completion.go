package features

import (
	"sort"
	"strings"

	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"github.com/milesziemer/smithy-language-server/internal/document"
	"go.lsp.dev/protocol"
)

// Completion returns a completion item for every shape id in scope,
// i.e. every shape model knows about, filtered to those whose id
// starts with whatever partial token is under pos. This is a
// placeholder, not real IDE-grade completion (no member-shape bodies,
// no import text edits, no namespace-relative matching) — it exists to
// prove the dispatch table actually reaches the (Project, ProjectFile)
// contract end-to-end, the same way Hover and Definition do.
func Completion(doc *document.Document, model *assembly.Model, pos protocol.Position) []protocol.CompletionItem {
	if model == nil {
		return nil
	}
	prefix := ""
	if doc != nil {
		if id := doc.CopyDocumentID(document.Position{Line: int(pos.Line), Character: int(pos.Character)}); id != nil {
			prefix = strings.ToLower(id.Text)
		}
	}

	ids := make([]string, 0, len(model.Shapes))
	for id := range model.Shapes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var items []protocol.CompletionItem
	for _, id := range ids {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(id), prefix) {
			continue
		}
		shape := model.Shapes[id]
		items = append(items, protocol.CompletionItem{
			Label:  id,
			Kind:   protocol.CompletionItemKindClass,
			Detail: shape.Type,
		})
	}
	return items
}
