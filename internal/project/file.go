// Package project implements the workspace model: the resolved build
// configuration, the set of tracked files it names, and the assembled
// shape graph kept current as those files change.
package project

import (
	"strings"

	"github.com/milesziemer/smithy-language-server/internal/document"
)

// Kind distinguishes the two file roles a project tracks.
type Kind int

const (
	// KindIDL is a .smithy source file, parsed by the model assembler.
	KindIDL Kind = iota
	// KindBuild is a smithy-build.json or .smithy-project.json file;
	// editing it changes which sources are even part of the project.
	KindBuild
)

// File is a tracked project file: its path, its in-memory buffer, and
// enough derived state to support incremental reassembly without
// rereading the buffer from scratch.
type File struct {
	path string
	Kind Kind
	Doc  *document.Document

	// Namespace is the last namespace statement observed for this file,
	// set after each (re)assembly that touched it. Empty until parsed.
	Namespace string

	// Version is the LSP document version, advanced on every
	// textDocument/didChange; -1 means the file isn't open in the
	// editor and its buffer mirrors disk.
	Version int32
}

// NewFile creates a tracked file from its disk or didOpen text.
func NewFile(path string, kind Kind, text string) *File {
	return &File{
		path:    path,
		Kind:    kind,
		Doc:     document.New(text),
		Version: -1,
	}
}

// Path returns the file's absolute or workspace-relative path, exactly
// as it appears in the project's source list.
func (f *File) Path() string { return f.path }

// IsIDL reports whether f is a Smithy source file.
func (f *File) IsIDL() bool { return f.Kind == KindIDL }

// IsOpen reports whether the editor currently owns this file's buffer.
func (f *File) IsOpen() bool { return f.Version >= 0 }

// IsBuildFile reports whether path names a build configuration file
// recognized by LoadConfig (smithy-build.json or .smithy-project.json),
// used by the server to route didChange/didSave into a config reload
// instead of a model rebuild.
func IsBuildFile(path string) bool {
	base := path
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		base = path[idx+1:]
	}
	return base == "smithy-build.json" || base == ".smithy-project.json"
}

// IsIDLFile reports whether path names a Smithy source file by extension.
func IsIDLFile(path string) bool {
	return strings.HasSuffix(path, ".smithy") || strings.HasSuffix(path, ".json") && strings.Contains(path, ".smithy.json")
}
