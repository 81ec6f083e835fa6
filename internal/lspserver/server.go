// Package lspserver implements a Language Server Protocol server for the
// project/document lifecycle engine: workspace and detached project
// tracking, incremental model assembly, and the editor-facing language
// features built on top of it (diagnostics, hover, definition, document
// symbols, formatting).
//
// Transport: stdio only (--stdio) for v1.
// Protocol: LSP 3.17 types via go.lsp.dev/protocol, JSON-RPC via go.lsp.dev/jsonrpc2.
package lspserver

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"github.com/milesziemer/smithy-language-server/internal/document"
	"github.com/milesziemer/smithy-language-server/internal/features"
	"github.com/milesziemer/smithy-language-server/internal/serverstate"
	"github.com/milesziemer/smithy-language-server/internal/version"
	"github.com/milesziemer/smithy-language-server/internal/watch"
)

const serverName = "smithy-language-server"

// Server is the Smithy LSP server.
type Server struct {
	conn      jsonrpc2.Conn
	state     *serverstate.State
	registrar *watch.Registrar

	// minimumSeverity mirrors initializationOptions.diagnostics.minimumSeverity,
	// set once from the initialize request and read by every diagnostics publish.
	minimumSeverity assembly.Severity
}

// New creates a new LSP server.
func New() *Server {
	return &Server{
		state:           serverstate.New(),
		registrar:       watch.NewRegistrar(),
		minimumSeverity: assembly.SeverityWarning,
	}
}

// RunStdio starts the LSP server on stdin/stdout.
// It blocks until the connection is closed or the context is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	stream := jsonrpc2.NewStream(stdioReadWriteCloser{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn

	conn.Go(ctx, jsonrpc2.AsyncHandler(jsonrpc2.ReplyHandler(s.handle)))

	select {
	case <-ctx.Done():
		return conn.Close()
	case <-conn.Done():
		return conn.Err()
	}
}

// handle dispatches incoming JSON-RPC messages to the appropriate handler.
func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	// Lifecycle
	case protocol.MethodInitialize:
		return s.handleInitialize(ctx, reply, req)
	case protocol.MethodInitialized:
		s.registerWatchers(ctx)
		return reply(ctx, nil, nil)
	case protocol.MethodShutdown:
		return reply(ctx, nil, nil)
	case protocol.MethodExit:
		return s.conn.Close()
	case protocol.MethodSetTrace:
		return reply(ctx, nil, nil)

	// Workspace folders
	case protocol.MethodWorkspaceDidChangeWorkspaceFolders:
		return s.handleDidChangeWorkspaceFolders(ctx, reply, req)
	case protocol.MethodWorkspaceDidChangeWatchedFiles:
		return s.handleDidChangeWatchedFiles(ctx, reply, req)
	case protocol.MethodWorkspaceDidChangeConfiguration:
		return reply(ctx, nil, nil)

	// Document sync
	case protocol.MethodTextDocumentDidOpen:
		return s.handleDidOpen(ctx, reply, req)
	case protocol.MethodTextDocumentDidChange:
		return s.handleDidChange(ctx, reply, req)
	case protocol.MethodTextDocumentDidSave:
		return s.handleDidSave(ctx, reply, req)
	case protocol.MethodTextDocumentDidClose:
		return s.handleDidClose(ctx, reply, req)

	// Language features
	case protocol.MethodTextDocumentHover:
		return s.handleHover(ctx, reply, req)
	case protocol.MethodTextDocumentCompletion:
		return s.handleCompletion(ctx, reply, req)
	case protocol.MethodTextDocumentDefinition:
		return s.handleDefinition(ctx, reply, req)
	case protocol.MethodTextDocumentDocumentSymbol:
		return s.handleDocumentSymbol(ctx, reply, req)
	case protocol.MethodTextDocumentFormatting:
		return s.handleFormatting(ctx, reply, req)

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

// handleInitialize responds to the initialize request with server capabilities.
func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	log.Printf("lsp: initialize from %s", clientInfoString(params.ClientInfo))

	opts := parseInitializationOptions(params.InitializationOptions)
	s.state.SetOnlyReloadOnSave(opts.OnlyReloadOnSave)
	s.minimumSeverity = opts.minimumSeverity()

	for _, folder := range params.WorkspaceFolders {
		if err := s.state.AddWorkspaceFolder(uriToPath(string(folder.URI))); err != nil {
			log.Printf("lsp: loading workspace folder %s: %v", folder.URI, err)
		}
	}

	syncKind := protocol.TextDocumentSyncKindIncremental

	result := protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    syncKind,
				Save: &protocol.SaveOptions{
					IncludeText: true,
				},
			},
			HoverProvider:              true,
			CompletionProvider:         &protocol.CompletionOptions{},
			DefinitionProvider:         true,
			DocumentSymbolProvider:     true,
			DocumentFormattingProvider: true,
			Workspace: &protocol.ServerCapabilitiesWorkspace{
				WorkspaceFolders: &protocol.ServerCapabilitiesWorkspaceFolders{
					Supported: true,
				},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: version.Version(),
		},
	}

	return reply(ctx, result, nil)
}

// registerWatchers asks the client to watch Smithy sources and build
// files on our behalf, once per initialized handshake. A real editor
// that can't or won't honor dynamic registration still works: the
// server never relies on these notifications for correctness, only for
// picking up out-of-band disk changes without an explicit didSave.
func (s *Server) registerWatchers(ctx context.Context) {
	roots := s.state.WorkspaceRoots()
	if len(roots) == 0 {
		return
	}
	regs := []protocol.Registration{
		s.registrar.SmithyFileRegistration(roots),
		s.registrar.BuildFileRegistration(roots),
	}
	if _, err := s.conn.Call(ctx, protocol.MethodClientRegisterCapability, &protocol.RegistrationParams{Registrations: regs}, nil); err != nil {
		log.Printf("lsp: registering watchers: %v", err)
	}
}

// handleDidChangeWorkspaceFolders attaches added roots and detaches removed ones.
func (s *Server) handleDidChangeWorkspaceFolders(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeWorkspaceFoldersParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	for _, removed := range params.Event.Removed {
		s.state.RemoveWorkspaceFolder(uriToPath(string(removed.URI)))
	}
	for _, added := range params.Event.Added {
		if err := s.state.AddWorkspaceFolder(uriToPath(string(added.URI))); err != nil {
			log.Printf("lsp: loading workspace folder %s: %v", added.URI, err)
		}
	}
	return reply(ctx, nil, nil)
}

// handleDidChangeWatchedFiles routes create/change/delete events for
// files the client watches on our behalf into serverstate.
func (s *Server) handleDidChangeWatchedFiles(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeWatchedFilesParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	for _, change := range params.Changes {
		path := uriToPath(string(change.URI))
		var err error
		switch change.Type {
		case protocol.FileChangeTypeCreated:
			err = s.state.WatchedFileCreated(path)
		case protocol.FileChangeTypeChanged:
			err = s.state.WatchedFileChanged(path)
		case protocol.FileChangeTypeDeleted:
			err = s.state.WatchedFileDeleted(path)
		}
		if err != nil {
			log.Printf("lsp: watched file %s: %v", path, err)
			continue
		}
		s.publishDiagnosticsFor(ctx, path)
	}
	return reply(ctx, nil, nil)
}

// handleDidOpen handles textDocument/didOpen by tracking the document and assembling diagnostics.
func (s *Server) handleDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	if err := s.state.Open(path, params.TextDocument.Text); err != nil {
		log.Printf("lsp: open %s: %v", path, err)
	}
	s.publishDiagnosticsFor(ctx, path)
	return reply(ctx, nil, nil)
}

// handleDidChange handles textDocument/didChange by updating the document and reassembling.
func (s *Server) handleDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	// With incremental sync, the client sends one event per edit region;
	// a change with no Range is a full-document replacement (clients are
	// still free to send that instead of a ranged edit).
	// protocol.TextDocumentContentChangeEvent holds Range by value, so the
	// changes are decoded a second time to tell an absent range apart.
	var ranges struct {
		ContentChanges []struct {
			Range *protocol.Range `json:"range"`
		} `json:"contentChanges"`
	}
	_ = json.Unmarshal(req.Params(), &ranges)
	for i, change := range params.ContentChanges {
		var rng *document.Range
		if i < len(ranges.ContentChanges) {
			rng = toDocumentRange(ranges.ContentChanges[i].Range)
		}
		if err := s.state.ChangeText(ctx, path, params.TextDocument.Version, rng, change.Text); err != nil {
			log.Printf("lsp: change %s: %v", path, err)
		}
	}
	s.publishDiagnosticsFor(ctx, path)
	return reply(ctx, nil, nil)
}

// toDocumentRange converts an LSP range into the document package's
// position type, or nil if rng is nil (a full-document replacement).
func toDocumentRange(rng *protocol.Range) *document.Range {
	if rng == nil {
		return nil
	}
	return &document.Range{
		Start: document.Position{Line: int(rng.Start.Line), Character: int(rng.Start.Character)},
		End:   document.Position{Line: int(rng.End.Line), Character: int(rng.End.Character)},
	}
}

// handleDidSave handles textDocument/didSave by revalidating.
func (s *Server) handleDidSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	if err := s.state.Save(ctx, path); err != nil {
		log.Printf("lsp: save %s: %v", path, err)
	}
	s.publishDiagnosticsFor(ctx, path)
	return reply(ctx, nil, nil)
}

// handleDidClose handles textDocument/didClose by clearing diagnostics and releasing the buffer.
func (s *Server) handleDidClose(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidCloseTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	s.state.Close(path)
	s.clearDiagnostics(ctx, string(params.TextDocument.URI))
	return reply(ctx, nil, nil)
}

// handleHover handles textDocument/hover.
func (s *Server) handleHover(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.HoverParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	f := s.state.FileFor(path)
	p := s.state.ProjectFor(path)
	if f == nil || p == nil {
		return reply(ctx, nil, nil)
	}
	hover := features.Hover(f.Doc, p.Result().Model, params.Position)
	if hover == nil {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, hover, nil)
}

// handleCompletion handles textDocument/completion.
func (s *Server) handleCompletion(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.CompletionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	f := s.state.FileFor(path)
	p := s.state.ProjectFor(path)
	if f == nil || p == nil {
		return reply(ctx, nil, nil)
	}
	items := features.Completion(f.Doc, p.Result().Model, params.Position)
	return reply(ctx, protocol.CompletionList{Items: items}, nil)
}

// handleDefinition handles textDocument/definition.
func (s *Server) handleDefinition(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DefinitionParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	f := s.state.FileFor(path)
	p := s.state.ProjectFor(path)
	if f == nil || p == nil {
		return reply(ctx, nil, nil)
	}
	loc := features.Definition(f.Doc, p.Result().Model, params.Position)
	if loc == nil {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, *loc, nil)
}

// handleDocumentSymbol handles textDocument/documentSymbol.
func (s *Server) handleDocumentSymbol(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DocumentSymbolParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return replyParseError(ctx, reply, err)
	}

	path := uriToPath(string(params.TextDocument.URI))
	p := s.state.ProjectFor(path)
	if p == nil {
		return reply(ctx, nil, nil)
	}
	syms := features.DocumentSymbols(path, p.Result().Model)
	if len(syms) == 0 {
		return reply(ctx, nil, nil)
	}
	return reply(ctx, syms, nil)
}

// publishDiagnosticsFor assembles and publishes diagnostics for path's
// current project result.
func (s *Server) publishDiagnosticsFor(ctx context.Context, path string) {
	p := s.state.ProjectFor(path)
	if p == nil {
		return
	}
	diags := features.Diagnostics(path, p.Result(), s.minimumSeverity)
	s.publishDiagnostics(ctx, path, diags)
}

// initializationOptions is the closed set of custom options the client
// may send as initialize's initializationOptions.
type initializationOptions struct {
	OnlyReloadOnSave bool `json:"onlyReloadOnSave"`
	Diagnostics      struct {
		MinimumSeverity string `json:"minimumSeverity"`
	} `json:"diagnostics"`
}

func (o initializationOptions) minimumSeverity() assembly.Severity {
	switch o.Diagnostics.MinimumSeverity {
	case "NOTE":
		return assembly.SeverityNote
	case "DANGER":
		return assembly.SeverityDanger
	case "ERROR":
		return assembly.SeverityError
	default:
		return assembly.SeverityWarning
	}
}

// parseInitializationOptions decodes raw (InitializeParams.InitializationOptions,
// typed as any by go.lsp.dev/protocol) into initializationOptions,
// defaulting every field when raw is absent or doesn't match the shape.
func parseInitializationOptions(raw any) initializationOptions {
	var opts initializationOptions
	if raw == nil {
		return opts
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return opts
	}
	_ = json.Unmarshal(b, &opts)
	return opts
}

// replyParseError sends a JSON-RPC parse error.
func replyParseError(ctx context.Context, reply jsonrpc2.Replier, err error) error {
	return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.ParseError, "invalid params: %v", err))
}

// clientInfoString formats client info for logging.
func clientInfoString(info *protocol.ClientInfo) string {
	if info == nil {
		return "unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}

// stdioReadWriteCloser wraps stdin/stdout as an io.ReadWriteCloser for JSON-RPC.
type stdioReadWriteCloser struct{}

func (stdioReadWriteCloser) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriteCloser) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioReadWriteCloser) Close() error                { return nil }
