package lsptest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

var (
	binaryPath  string
	coverageDir string
)

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "smithy-ls-lsptest")
	if err != nil {
		panic(err)
	}

	binaryName := "smithy-ls"
	if runtime.GOOS == "windows" {
		binaryName = "smithy-ls.exe"
	}
	binaryPath = filepath.Join(tmpDir, binaryName)

	// Reuse the same coverage directory as integration tests.
	coverageDir = os.Getenv("GOCOVERDIR")
	if coverageDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			_ = os.RemoveAll(tmpDir)
			panic("failed to get working directory: " + err.Error())
		}
		coverageDir = filepath.Join(wd, "..", "..", "coverage")
	}
	coverageDir, err = filepath.Abs(coverageDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		panic("failed to get absolute coverage directory path: " + err.Error())
	}
	if err := os.MkdirAll(coverageDir, 0o750); err != nil {
		_ = os.RemoveAll(tmpDir)
		panic("failed to create coverage directory: " + err.Error())
	}

	// Build the binary with coverage instrumentation.
	cmd := exec.Command("go", "build", "-cover", "-o", binaryPath, "github.com/milesziemer/smithy-language-server/cmd/smithy-ls")
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(tmpDir)
		panic("failed to build binary: " + string(out))
	}

	code := m.Run()
	_ = os.RemoveAll(tmpDir)
	os.Exit(code)
}

// processIO wraps subprocess stdin/stdout as an io.ReadWriteCloser
// for use with jsonrpc2.NewStream.
type processIO struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (p *processIO) Read(data []byte) (int, error)  { return p.reader.Read(data) }
func (p *processIO) Write(data []byte) (int, error) { return p.writer.Write(data) }
func (p *processIO) Close() error                   { return p.writer.Close() }

// testServer manages a smithy-ls serve --stdio subprocess for black-box testing.
type testServer struct {
	cmd    *exec.Cmd
	conn   jsonrpc2.Conn
	stderr *bytes.Buffer

	diagnosticsCh chan *protocol.PublishDiagnosticsParams
}

// startTestServer launches smithy-ls serve --stdio as a subprocess with
// Content-Length-framed JSON-RPC over stdin/stdout.
func startTestServer(t *testing.T) *testServer {
	t.Helper()

	cmd := exec.Command(binaryPath, "serve", "--stdio")
	cmd.Env = append(os.Environ(), "GOCOVERDIR="+coverageDir)

	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	require.NoError(t, cmd.Start())

	stream := jsonrpc2.NewStream(&processIO{reader: stdout, writer: stdin})
	conn := jsonrpc2.NewConn(stream)

	ts := &testServer{
		cmd:           cmd,
		conn:          conn,
		stderr:        &stderr,
		diagnosticsCh: make(chan *protocol.PublishDiagnosticsParams, 10),
	}

	// Route server-to-client notifications.
	conn.Go(context.Background(), func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if req.Method() == protocol.MethodTextDocumentPublishDiagnostics {
			var params protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(req.Params(), &params); err == nil {
				ts.diagnosticsCh <- &params
			}
		}
		return reply(ctx, nil, nil)
	})

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("server stderr:\n%s", stderr.String())
		}
		if err := conn.Close(); err != nil {
			t.Logf("lsp conn close: %v", err)
		}
		// Wait for process with timeout; kill if it doesn't exit.
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			if err := cmd.Process.Kill(); err != nil {
				t.Logf("kill lsp server: %v", err)
			}
			<-done
		}
	})

	return ts
}

// initialize sends initialize + initialized and returns the server capabilities.
func (ts *testServer) initialize(t *testing.T) protocol.InitializeResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result protocol.InitializeResult
	_, err := ts.conn.Call(ctx, protocol.MethodInitialize, &protocol.InitializeParams{
		ClientInfo: &protocol.ClientInfo{
			Name:    "smithy-ls-lsptest",
			Version: "1.0.0",
		},
	}, &result)
	require.NoError(t, err)

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{}))

	return result
}

const diagTimeout = 10 * time.Second

// waitDiagnostics blocks until a publishDiagnostics notification arrives or timeout.
func (ts *testServer) waitDiagnostics(t *testing.T) *protocol.PublishDiagnosticsParams {
	t.Helper()
	select {
	case d := <-ts.diagnosticsCh:
		return d
	case <-time.After(diagTimeout):
		t.Fatal("timed out waiting for diagnostics")
		return nil
	}
}

// waitDiagnosticsFor blocks until a publishDiagnostics notification for
// uri specifically arrives, discarding any unrelated publishes (e.g. a
// build file's own diagnostics) in between.
func (ts *testServer) waitDiagnosticsFor(t *testing.T, uri protocol.DocumentURI) *protocol.PublishDiagnosticsParams {
	t.Helper()
	deadline := time.After(diagTimeout)
	for {
		select {
		case d := <-ts.diagnosticsCh:
			if d.URI == uri {
				return d
			}
		case <-deadline:
			t.Fatalf("timed out waiting for diagnostics for %s", uri)
			return nil
		}
	}
}

// shutdown sends the shutdown request followed by exit notification.
func (ts *testServer) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ts.conn.Call(ctx, protocol.MethodShutdown, nil, nil)
	require.NoError(t, err)

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodExit, nil))
}

// openDocument sends textDocument/didOpen.
func (ts *testServer) openDocument(t *testing.T, uri protocol.DocumentURI, content string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodTextDocumentDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: "smithy",
			Version:    1,
			Text:       content,
		},
	}))
}

// addWorkspaceFolder sends workspace/didChangeWorkspaceFolders adding a
// single folder, mirroring what an editor sends after the user opens a
// project directory post-initialize.
func (ts *testServer) addWorkspaceFolder(t *testing.T, uri protocol.DocumentURI, name string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodWorkspaceDidChangeWorkspaceFolders, &protocol.DidChangeWorkspaceFoldersParams{
		Event: protocol.WorkspaceFoldersChangeEvent{
			Added: []protocol.WorkspaceFolder{{URI: string(uri), Name: name}},
		},
	}))
}

// notifyWatchedFileChanged sends workspace/didChangeWatchedFiles for a
// single Changed event, simulating an editor-external edit to a build
// file or a source file not open as a buffer.
func (ts *testServer) notifyWatchedFileChanged(t *testing.T, uri protocol.DocumentURI, changeType protocol.FileChangeType) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodWorkspaceDidChangeWatchedFiles, &protocol.DidChangeWatchedFilesParams{
		Changes: []*protocol.FileEvent{{URI: uri, Type: changeType}},
	}))
}

// changeDocument sends textDocument/didChange as a full-document
// replacement (no Range on the content change), which the server's
// incremental sync mode still accepts.
func (ts *testServer) changeDocument(t *testing.T, uri protocol.DocumentURI, version int32, content string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// protocol.TextDocumentContentChangeEvent always serializes its Range,
	// so the params are built as a map to leave "range" out.
	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodTextDocumentDidChange, map[string]any{
		"textDocument": protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		"contentChanges": []map[string]any{
			{"text": content},
		},
	}))
}

// closeDocument sends textDocument/didClose.
func (ts *testServer) closeDocument(t *testing.T, uri protocol.DocumentURI) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodTextDocumentDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
}

// saveDocument sends textDocument/didSave with text included.
func (ts *testServer) saveDocument(t *testing.T, uri protocol.DocumentURI, content string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ts.conn.Notify(ctx, protocol.MethodTextDocumentDidSave, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Text:         content,
	}))
}
