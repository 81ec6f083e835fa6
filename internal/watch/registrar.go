// Package watch computes the dynamic-registration payloads that tell
// the client which files to watch on our behalf, and drives an
// fsnotify-backed watcher for the headless CLI mode where there is no
// client to ask.
package watch

import (
	"sort"

	"go.lsp.dev/protocol"
)

const (
	watchFilesMethod = "workspace/didChangeWatchedFiles"

	smithyFilesID = "WatchSmithyFiles"
	buildFilesID  = "WatchSmithyBuildFiles"

	// watchFileKind is Create|Change|Delete: changes to files already
	// open in the editor arrive via textDocument/didChange, but content
	// updates to a watched-but-unopened file still need WatchKind.Change;
	// kept separate from the open-file-sync registrations below.
	watchFileKind = protocol.WatchKind(int(protocol.WatchKindCreate) | int(protocol.WatchKindChange) | int(protocol.WatchKindDelete))
)

// Registrar computes dynamic capability registrations for file
// watching, one registration set per concern (Smithy sources vs. build
// files), matching FileRegistrations' split so the two can be
// recomputed independently when a project's sources change without
// touching the build-file watch, and vice versa when a workspace
// folder is added or removed.
type Registrar struct{}

// NewRegistrar returns the default Registrar.
func NewRegistrar() *Registrar { return &Registrar{} }

// SmithyFileRegistration returns the single registration to watch for
// creates/changes/deletes of every glob pattern across the given
// projects' roots. Patterns are deduplicated and sorted for a
// deterministic payload (useful for snapshot tests).
func (r *Registrar) SmithyFileRegistration(roots []string) protocol.Registration {
	patterns := dedupSorted(roots, "/**/*.smithy")
	return r.registration(smithyFilesID, patterns)
}

// BuildFileRegistration returns the single registration to watch for
// smithy-build.json / .smithy-project.json creation, change, or
// deletion across every workspace root, regardless of whether that
// root currently resolves to a project.
func (r *Registrar) BuildFileRegistration(workspaceRoots []string) protocol.Registration {
	patterns := dedupSorted(workspaceRoots, "/{smithy-build,.smithy-project}.json")
	return r.registration(buildFilesID, patterns)
}

func (r *Registrar) registration(id string, patterns []string) protocol.Registration {
	watchers := make([]protocol.FileSystemWatcher, 0, len(patterns))
	for _, p := range patterns {
		watchers = append(watchers, protocol.FileSystemWatcher{
			GlobPattern: p,
			Kind:        watchFileKind,
		})
	}
	return protocol.Registration{
		ID:     id,
		Method: watchFilesMethod,
		RegisterOptions: protocol.DidChangeWatchedFilesRegistrationOptions{
			Watchers: watchers,
		},
	}
}

// SmithyFileUnregistration and BuildFileUnregistration mirror the
// registration IDs above; the client doesn't deduplicate watchers by
// pattern, so every re-registration must be preceded by unregistering
// the previous set rather than trying to diff it.
func (r *Registrar) SmithyFileUnregistration() protocol.Unregistration {
	return protocol.Unregistration{ID: smithyFilesID, Method: watchFilesMethod}
}

func (r *Registrar) BuildFileUnregistration() protocol.Unregistration {
	return protocol.Unregistration{ID: buildFilesID, Method: watchFilesMethod}
}

func dedupSorted(roots []string, suffix string) []string {
	seen := make(map[string]bool, len(roots))
	var out []string
	for _, root := range roots {
		pattern := root + suffix
		if !seen[pattern] {
			seen[pattern] = true
			out = append(out, pattern)
		}
	}
	sort.Strings(out)
	return out
}
