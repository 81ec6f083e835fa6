package lspserver

import (
	"context"
	"encoding/json"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// handleFormatting handles textDocument/formatting. The formatter is
// intentionally minimal: it trims trailing whitespace from every line
// and ensures the document ends in exactly one newline, mirroring what
// Smithy's own CLI formatter normalizes without reparsing or
// reindenting the IDL grammar.
func (s *Server) handleFormatting(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentFormattingParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	f := s.state.FileFor(path)
	if f == nil {
		return reply(ctx, nil, nil)
	}

	original := f.Doc.CopyText()
	formatted := formatSmithy(original)
	if formatted == original {
		return reply(ctx, nil, nil)
	}

	return reply(ctx, computeTextEdits(f.Doc, formatted), nil)
}

// formatSmithy trims trailing whitespace from each line and normalizes
// the file to end in exactly one trailing newline.
func formatSmithy(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n") + "\n"
	return out
}

// computeTextEdits produces a single whole-document replacement edit,
// scanning f's text for newlines to compute the end-of-document range.
func computeTextEdits(f interface {
	CopyText() string
}, modified string) []protocol.TextEdit {
	original := f.CopyText()
	lines := uint32(0)
	lastLineLen := uint32(0)
	for i := range len(original) {
		if original[i] == '\n' {
			lines++
			lastLineLen = 0
		} else {
			lastLineLen++
		}
	}

	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   protocol.Position{Line: lines, Character: lastLineLen},
		},
		NewText: modified,
	}}
}
