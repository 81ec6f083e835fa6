package lspserver

import (
	"context"
	"log"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// publishDiagnostics sends diags for path to the client, translating the
// local path back to the file:// URI the editor knows it by.
func (s *Server) publishDiagnostics(ctx context.Context, path string, diags []protocol.Diagnostic) {
	if err := s.conn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri.File(path)),
		Diagnostics: diags,
	}); err != nil {
		log.Printf("lsp: failed to publish diagnostics: %v", err)
	}
}

// clearDiagnostics sends an empty diagnostics array to clear issues for a URI.
func (s *Server) clearDiagnostics(ctx context.Context, docURI string) {
	if err := s.conn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(docURI),
		Diagnostics: []protocol.Diagnostic{},
	}); err != nil {
		log.Printf("lsp: failed to clear diagnostics: %v", err)
	}
}

// uriToPath converts a file:// URI to a local file path.
func uriToPath(docURI string) string {
	parsed, err := url.Parse(docURI)
	if err != nil {
		return strings.TrimPrefix(docURI, "file://")
	}
	path := parsed.Path
	// On Windows, file URIs look like file:///C:/path, so Path is /C:/path.
	if runtime.GOOS == "windows" && len(path) > 2 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}
