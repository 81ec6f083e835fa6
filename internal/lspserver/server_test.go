package lspserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// testPipe creates an in-memory connected pair of jsonrpc2 connections.
// Returns (clientConn, serverConn).
func testPipe(t *testing.T) (jsonrpc2.Conn, jsonrpc2.Conn) {
	t.Helper()

	// Two pipes: one for each direction.
	// client writes -> server reads (c2s)
	// server writes -> client reads (s2c)
	c2s := newPipeEnd()
	s2c := newPipeEnd()

	clientStream := jsonrpc2.NewStream(rwc{reader: s2c, writer: c2s})
	serverStream := jsonrpc2.NewStream(rwc{reader: c2s, writer: s2c})

	clientConn := jsonrpc2.NewConn(clientStream)
	serverConn := jsonrpc2.NewConn(serverStream)

	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	return clientConn, serverConn
}

// startServer wires a Server onto serverConn and a client-side
// notification sink that forwards textDocument/publishDiagnostics onto ch.
func startServer(t *testing.T, ctx context.Context, clientConn, serverConn jsonrpc2.Conn) (*Server, chan *protocol.PublishDiagnosticsParams) {
	t.Helper()

	s := New()
	s.conn = serverConn
	serverConn.Go(ctx, jsonrpc2.AsyncHandler(jsonrpc2.ReplyHandler(s.handle)))

	ch := make(chan *protocol.PublishDiagnosticsParams, 8)
	clientConn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case protocol.MethodTextDocumentPublishDiagnostics:
			var params protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(req.Params(), &params); err == nil {
				ch <- &params
			}
			return reply(ctx, nil, nil)
		case protocol.MethodClientRegisterCapability:
			return reply(ctx, nil, nil)
		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	})
	return s, ch
}

func TestInitializeHandshake(t *testing.T) {
	ctx := context.Background()
	clientConn, serverConn := testPipe(t)
	startServer(t, ctx, clientConn, serverConn)

	var result protocol.InitializeResult
	_, err := clientConn.Call(ctx, protocol.MethodInitialize, &protocol.InitializeParams{
		ClientInfo: &protocol.ClientInfo{
			Name:    "test-client",
			Version: "1.0.0",
		},
	}, &result)
	require.NoError(t, err)

	assert.Equal(t, serverName, result.ServerInfo.Name)
	assert.NotEmpty(t, result.ServerInfo.Version)
}

func TestDiagnosticsOnOpen(t *testing.T) {
	ctx := t.Context()
	clientConn, serverConn := testPipe(t)
	_, diagnosticsCh := startServer(t, ctx, clientConn, serverConn)

	var initResult protocol.InitializeResult
	_, err := clientConn.Call(ctx, protocol.MethodInitialize, &protocol.InitializeParams{}, &initResult)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "main.smithy")
	err = clientConn.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI("file://" + path),
			LanguageID: "smithy",
			Version:    1,
			Text:       "namespace com.foo\napply Bar @required\n",
		},
	})
	require.NoError(t, err)

	select {
	case diag := <-diagnosticsCh:
		assert.NotEmpty(t, diag.Diagnostics, "expected a diagnostic for applying a trait to an undefined shape")
		found := false
		for _, d := range diag.Diagnostics {
			if d.Source == "smithy" {
				found = true
				break
			}
		}
		assert.True(t, found, "expected diagnostics from the smithy source")
	case <-ctx.Done():
		t.Fatal("timed out waiting for diagnostics")
	}
}

func TestDiagnosticsClearedOnClose(t *testing.T) {
	ctx := t.Context()
	clientConn, serverConn := testPipe(t)
	_, diagnosticsCh := startServer(t, ctx, clientConn, serverConn)

	var initResult protocol.InitializeResult
	_, err := clientConn.Call(ctx, protocol.MethodInitialize, &protocol.InitializeParams{}, &initResult)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "main.smithy")
	uri := protocol.DocumentURI("file://" + path)

	err = clientConn.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: "smithy",
			Version:    1,
			Text:       "namespace com.foo\napply Bar @required\n",
		},
	})
	require.NoError(t, err)

	<-diagnosticsCh

	err = clientConn.Notify(ctx, protocol.MethodTextDocumentDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	require.NoError(t, err)

	select {
	case diag := <-diagnosticsCh:
		assert.Equal(t, uri, diag.URI)
		assert.Empty(t, diag.Diagnostics, "expected empty diagnostics after close")
	case <-ctx.Done():
		t.Fatal("timed out waiting for clear diagnostics")
	}
}

func TestHoverAndDefinitionRoundtrip(t *testing.T) {
	ctx := t.Context()
	clientConn, serverConn := testPipe(t)
	startServer(t, ctx, clientConn, serverConn)

	var initResult protocol.InitializeResult
	_, err := clientConn.Call(ctx, protocol.MethodInitialize, &protocol.InitializeParams{}, &initResult)
	require.NoError(t, err)

	dir := t.TempDir()
	defPath := filepath.Join(dir, "def.smithy")
	usePath := filepath.Join(dir, "use.smithy")
	require.NoError(t, os.WriteFile(defPath, []byte("namespace com.foo\nstring Bar\n"), 0o644))

	useURI := protocol.DocumentURI("file://" + usePath)
	err = clientConn.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        useURI,
			LanguageID: "smithy",
			Version:    1,
			Text:       "apply com.foo#Bar @required\n",
		},
	})
	require.NoError(t, err)

	var hover protocol.Hover
	_, err = clientConn.Call(ctx, protocol.MethodTextDocumentHover, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: useURI},
			Position:     protocol.Position{Line: 0, Character: 8},
		},
	}, &hover)
	require.NoError(t, err)

	var location protocol.Location
	_, err = clientConn.Call(ctx, protocol.MethodTextDocumentDefinition, &protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: useURI},
			Position:     protocol.Position{Line: 0, Character: 8},
		},
	}, &location)
	require.NoError(t, err)
}

func TestURIToPath(t *testing.T) {
	path := uriToPath("file:///tmp/main.smithy")
	assert.Equal(t, "/tmp/main.smithy", path)
}
