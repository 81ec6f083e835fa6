// Package serverstate implements the server's top-level lifecycle
// state: which workspace folders are open, which project each of them
// resolved to, which files are detached (open in the editor but not
// covered by any attached project), and which URIs the editor currently
// owns the buffer for. Every LSP notification that can change what the
// server knows about the workspace funnels through one of this
// package's methods, mirroring the single-entry-point shape of
// ServerState's open/close/tryInitProject/loadWorkspace/removeWorkspace.
package serverstate

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/milesziemer/smithy-language-server/internal/document"
	"github.com/milesziemer/smithy-language-server/internal/lifecycle"
	"github.com/milesziemer/smithy-language-server/internal/project"
)

// State is the full server-side lifecycle aggregate.
type State struct {
	mu sync.RWMutex

	loader *project.Loader

	// workspaceRoots are the folder paths the editor has told us about,
	// each resolved to at most one attached Project.
	workspaceRoots map[string]*project.Project

	// detachedProjects holds one single-file Project per open file that
	// no attached project's sources cover.
	detachedProjects map[string]*project.Project

	// managedUris is the set of file paths the editor currently owns
	// the buffer for (open via textDocument/didOpen, not yet closed).
	managedUris map[string]bool

	// onlyReloadOnSave mirrors the initializationOptions.onlyReloadOnSave
	// closed-set option: when set, didChange never schedules a
	// reassembly, only didSave does.
	onlyReloadOnSave bool

	Lifecycle *lifecycle.Manager
}

// New returns an empty State.
func New() *State {
	return &State{
		loader:           project.NewLoader(),
		workspaceRoots:   map[string]*project.Project{},
		detachedProjects: map[string]*project.Project{},
		managedUris:      map[string]bool{},
		Lifecycle:        lifecycle.NewManager(4),
	}
}

// SetOnlyReloadOnSave configures whether didChange schedules a
// reassembly, per initializationOptions.onlyReloadOnSave.
func (s *State) SetOnlyReloadOnSave(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onlyReloadOnSave = v
}

// AddWorkspaceFolder loads a project for root and attaches it,
// reconciling any previously detached file that the new project's
// sources now cover (findAttachedAndRemoveDetached in ServerState).
func (s *State) AddWorkspaceFolder(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.loader.Load(root)
	s.workspaceRoots[root] = p
	s.reattachDetachedLocked()
	return err
}

// RemoveWorkspaceFolder detaches root's project. Every file that project
// covered and that is still open in the editor becomes a detached
// project of its own, so the editor keeps getting diagnostics for files
// it still owns even though their workspace folder just went away.
func (s *State) RemoveWorkspaceFolder(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.workspaceRoots[root]
	delete(s.workspaceRoots, root)
	if !ok {
		return
	}
	for path, f := range p.Files() {
		if s.managedUris[path] {
			s.detachedProjects[path] = s.loader.LoadDetached(path, f.Doc.CopyText())
		}
	}
}

// findProjectAndFile returns the project that tracks path (attached,
// preferred, else detached) and the file within it, mirroring
// ServerState.findProjectAndFile's attached-before-detached precedence.
func (s *State) findProjectAndFile(path string) (*project.Project, *project.File) {
	for _, p := range s.workspaceRoots {
		if f := p.File(path); f != nil {
			return p, f
		}
	}
	if p, ok := s.detachedProjects[path]; ok {
		return p, p.File(path)
	}
	return nil, nil
}

// reattachDetachedLocked folds any detached project whose file is now
// covered by an attached project's sources back into that project,
// removing the now-redundant detached project. Must be called with
// s.mu held.
func (s *State) reattachDetachedLocked() {
	for path := range s.detachedProjects {
		for _, p := range s.workspaceRoots {
			if p.Covers(path) {
				delete(s.detachedProjects, path)
				break
			}
		}
	}
}

// migrateAttachDetachLocked reconciles attached/detached state after
// root's project has just been reloaded from old to new: any IDL path
// old tracked that new no longer covers, and that the editor still has
// open, becomes a detached project seeded with its in-memory text (with
// editor version preserved); any path new now covers drops its stale
// detached project, since the reload already made it current. Must be
// called with s.mu held.
func (s *State) migrateAttachDetachLocked(old, newProj *project.Project) {
	if old == nil {
		return
	}
	newIDL := map[string]bool{}
	for path, f := range newProj.Files() {
		if f.IsIDL() {
			newIDL[path] = true
		}
	}
	for path, f := range old.Files() {
		if !f.IsIDL() {
			continue
		}
		if newIDL[path] {
			delete(s.detachedProjects, path)
			continue
		}
		if !s.managedUris[path] {
			continue
		}
		detached := s.loader.LoadDetached(path, f.Doc.CopyText())
		if df := detached.File(path); df != nil {
			df.Version = f.Version
		}
		s.detachedProjects[path] = detached
	}
}

// reloadRootLocked reloads the project rooted at root from disk,
// migrating attached/detached state for files the new config no longer
// (or newly) covers, and carrying open buffers (text and version) over
// into the new project in place of the disk contents, reassembling if
// an open IDL buffer differs from disk. If the reload fails, the previous Project value at root is
// retained untouched (§7's config-error policy); if there was no
// previous project, the TypeUnresolved placeholder Load returns on
// error is still recorded, so the root is now at least tracked. Must be
// called with s.mu held.
func (s *State) reloadRootLocked(root string) error {
	old := s.workspaceRoots[root]
	newProj, err := s.loader.Load(root)
	if err != nil {
		if old == nil {
			s.workspaceRoots[root] = newProj
		}
		return err
	}

	s.migrateAttachDetachLocked(old, newProj)
	reassemble := false
	if old != nil {
		for path, f := range old.Files() {
			if !f.IsOpen() {
				continue
			}
			if nf := newProj.File(path); nf != nil {
				if nf.IsIDL() && nf.Doc.CopyText() != f.Doc.CopyText() {
					reassemble = true
				}
				nf.Version = f.Version
				nf.Doc = f.Doc
			}
		}
	}
	s.workspaceRoots[root] = newProj
	s.reattachDetachedLocked()
	if reassemble {
		_, err = newProj.Build(true)
	}
	return err
}

// rootOwning returns the workspace root directory that already tracks
// buildPath, if any.
func (s *State) rootOwning(buildPath string) (string, bool) {
	dir := filepath.Dir(buildPath)
	_, ok := s.workspaceRoots[dir]
	return dir, ok
}

// Open handles textDocument/didOpen: mark the file as editor-managed
// and ensure it's tracked by some project, attached or detached.
func (s *State) Open(path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.managedUris[path] = true

	if p, f := s.findProjectAndFile(path); p != nil {
		f.Version = 0
		if err := f.Doc.ApplyEdit(nil, text); err != nil {
			return err
		}
		_, err := p.UpdateFile(path, true)
		return err
	}

	if project.IsBuildFile(path) {
		// A build file opened before its directory is recognized as a
		// project (no Created watch event or AddWorkspaceFolder yet)
		// seeds an UNRESOLVED placeholder there; WatchedFileCreated or
		// AddWorkspaceFolder promotes it to NORMAL/EMPTY once the
		// directory's config actually loads, without losing this text.
		root := filepath.Dir(path)
		p := project.New(root, project.TypeUnresolved, nil)
		f := project.NewFile(path, project.KindBuild, text)
		f.Version = 0
		p.AddFile(f)
		s.workspaceRoots[root] = p
		return nil
	}

	root := findCoveringWorkspaceRoot(s.workspaceRoots, path)
	if root != "" {
		p := s.workspaceRoots[root]
		f := project.NewFile(path, project.KindIDL, text)
		f.Version = 0
		p.AddFile(f)
		_, err := p.UpdateFile(path, true)
		return err
	}

	s.detachedProjects[path] = s.loader.LoadDetached(path, text)
	if f := s.detachedProjects[path].File(path); f != nil {
		f.Version = 0
	}
	return nil
}

// Close handles textDocument/didClose: the editor no longer owns the
// buffer. A detached project backing this file alone is torn down
// entirely; a file inside an attached project is marked not open and
// keeps its current buffer text (it is not reread from disk here).
func (s *State) Close(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.managedUris, path)
	if _, ok := s.detachedProjects[path]; ok {
		delete(s.detachedProjects, path)
		return
	}
	if p, f := s.findProjectAndFile(path); p != nil && f != nil {
		f.Version = -1
	}
}

// ChangeText applies newText to path's buffer — a ranged, incremental
// edit when rng is non-nil (the server advertises incremental sync; see
// SPEC_FULL.md's External Interfaces), a full-buffer replacement when
// rng is nil — and schedules a reassembly of its co-dependent set
// through Lifecycle, which cancels any still-running task for the same
// path first (§8 scenario 6). A build file routes into the same
// config-reload/migration path WatchedFileChanged uses, since editors
// send didChange for any open buffer regardless of kind.
func (s *State) ChangeText(ctx context.Context, path string, version int32, rng *document.Range, newText string) error {
	taskCtx, _, release := s.Lifecycle.Put(ctx, path, "change")
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if project.IsBuildFile(path) {
		if p, f := s.findProjectAndFile(path); p != nil && f != nil && f.Kind == project.KindBuild {
			f.Version = version
			if err := f.Doc.ApplyEdit(rng, newText); err != nil {
				return err
			}
		}
		if s.onlyReloadOnSave {
			return nil
		}
		root, ok := s.rootOwning(path)
		if !ok {
			root = filepath.Dir(path)
		}
		if taskCtx.Err() != nil {
			return nil
		}
		return s.reloadRootLocked(root)
	}

	p, f := s.findProjectAndFile(path)
	if p == nil || f == nil {
		return nil
	}
	f.Version = version
	if err := f.Doc.ApplyEdit(rng, newText); err != nil {
		return err
	}
	if s.onlyReloadOnSave {
		return nil
	}
	if taskCtx.Err() != nil {
		// A newer edit to the same path has already superseded this
		// one; skip the assembly phase rather than racing it.
		return nil
	}
	_, err := p.UpdateFile(path, true)
	return err
}

// Save handles textDocument/didSave: for an IDL file, a revalidation
// request in case the editor's save-triggered formatter changed
// something out-of-band from didChange notifications; for a build file,
// an authoritative config reload (the one trigger onlyReloadOnSave mode
// still honors).
func (s *State) Save(ctx context.Context, path string) error {
	taskCtx, _, release := s.Lifecycle.Put(ctx, path, "save")
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if project.IsBuildFile(path) {
		root, ok := s.rootOwning(path)
		if !ok {
			root = filepath.Dir(path)
		}
		if taskCtx.Err() != nil {
			return nil
		}
		return s.reloadRootLocked(root)
	}

	p, f := s.findProjectAndFile(path)
	if p == nil || f == nil {
		return nil
	}
	if taskCtx.Err() != nil {
		return nil
	}
	_, err := p.UpdateFile(path, true)
	return err
}

// WatchedFileCreated handles a workspace/didChangeWatchedFiles Created
// event. A created build file (re)initialises the project rooted at its
// directory, picking up any previously-detached URIs that now belong to
// it (including a build file opened before this event arrived, which
// Open above seeded as an UNRESOLVED placeholder and this promotes to
// NORMAL/EMPTY). A created IDL file re-initialises its owning workspace
// project wholesale, since a new file can change what a directory glob
// resolves to beyond just this one path.
func (s *State) WatchedFileCreated(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.IsBuildFile(path) {
		return s.reloadRootLocked(filepath.Dir(path))
	}

	root := findCoveringWorkspaceRoot(s.workspaceRoots, path)
	if root == "" {
		return nil
	}
	return s.reloadRootLocked(root)
}

// WatchedFileDeleted handles a Deleted event: remove the file from
// whichever project tracks it and reassemble its former co-dependent
// set so traits it applied elsewhere are retracted. If the deleted path
// is still managed (open in the editor), it gets its own detached
// project seeded with the in-memory text, rather than being dropped
// outright.
func (s *State) WatchedFileDeleted(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, f := s.findProjectAndFile(path)
	if p == nil || f == nil {
		return nil
	}
	text := f.Doc.CopyText()
	version := f.Version
	p.RemoveFile(path)
	_, err := p.UpdateFile(path, true)

	if s.managedUris[path] {
		detached := s.loader.LoadDetached(path, text)
		if df := detached.File(path); df != nil {
			df.Version = version
		}
		s.detachedProjects[path] = detached
	}
	return err
}

// WatchedFileChanged handles a Changed event. A build file always
// reloads config for its project and migrates URIs between
// attached/detached sets accordingly (§4.6), regardless of whether it
// is also open in the editor — disk content is authoritative for
// config. An IDL file not open in the editor is reread from disk and
// its co-dependent set reassembled; one that is open is left alone,
// since didChange is authoritative for its buffer.
func (s *State) WatchedFileChanged(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.IsBuildFile(path) {
		root, ok := s.rootOwning(path)
		if !ok {
			root = filepath.Dir(path)
		}
		return s.reloadRootLocked(root)
	}

	if s.managedUris[path] {
		// The editor owns this buffer; didChange is authoritative.
		return nil
	}
	p, f := s.findProjectAndFile(path)
	if p == nil || f == nil {
		return nil
	}
	text, ok := readDisk(path)
	if !ok {
		return nil
	}
	if err := f.Doc.ApplyEdit(nil, text); err != nil {
		return err
	}
	_, err := p.UpdateFile(path, true)
	return err
}

// OnCreate, OnChange and OnDelete implement watch.Handler, letting the
// headless CLI watch mode drive this State through the exact same
// transitions workspace/didChangeWatchedFiles would from a real client.
func (s *State) OnCreate(path string) error { return s.WatchedFileCreated(path) }
func (s *State) OnChange(path string) error { return s.WatchedFileChanged(path) }
func (s *State) OnDelete(path string) error { return s.WatchedFileDeleted(path) }

// ProjectAtRoot returns the project attached at exactly root, or nil if
// root isn't a known workspace folder. Unlike ProjectFor (which looks
// up the project tracking a given file), this is keyed by the folder
// path itself — used by headless callers that want every diagnostic in
// a project right after loading it, before any file-level event exists.
func (s *State) ProjectAtRoot(root string) *project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceRoots[root]
}

// WorkspaceRoots returns every workspace folder root the server currently
// knows about, used to compute dynamic file-watcher registrations.
func (s *State) WorkspaceRoots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roots := make([]string, 0, len(s.workspaceRoots))
	for root := range s.workspaceRoots {
		roots = append(roots, root)
	}
	return roots
}

// ProjectFor exposes the project currently tracking path, for read-only
// consumers like hover/diagnostics.
func (s *State) ProjectFor(path string) *project.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.findProjectAndFile(path)
	return p
}

// FileFor exposes the tracked file for path.
func (s *State) FileFor(path string) *project.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, f := s.findProjectAndFile(path)
	return f
}

func readDisk(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func findCoveringWorkspaceRoot(roots map[string]*project.Project, path string) string {
	for root, p := range roots {
		if p.Covers(path) || p.MatchesSources(path) {
			return root
		}
	}
	return ""
}
