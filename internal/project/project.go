package project

import (
	"fmt"
	"sort"

	"github.com/milesziemer/smithy-language-server/internal/assembly"
)

// Type discriminates the four ways a project can relate to the files
// the server is managing, named directly after the states
// ServerState.findProjectAndFile/resolveDetachedProjects distinguish.
type Type int

const (
	// TypeNormal is a project backed by a real smithy-build.json (or
	// default config) whose sources cover the file in question.
	TypeNormal Type = iota
	// TypeDetached is a single-file project created for a file that is
	// open in the editor but not covered by any workspace project's
	// sources.
	TypeDetached
	// TypeEmpty is a workspace root whose sources resolve to no files,
	// whether or not a build file is present.
	TypeEmpty
	// TypeUnresolved is a project whose config failed to load, or the
	// placeholder for a build file opened before its directory is loaded
	// as a project.
	TypeUnresolved
)

// rebuildIndex is the direct-adjacency bookkeeping the incremental
// update algorithm walks to compute a co-dependent file set. It is
// rebuilt in full every time the project assembles (cheap relative to
// assembly itself) rather than maintained incrementally, trading a
// little redundant work for a much simpler invariant.
type rebuildIndex struct {
	// definedShapes maps a file to the shape IDs it declares.
	definedShapes map[string]map[string]bool
	// shapeFile maps a shape ID to the file that declares it.
	shapeFile map[string]string
	// applyFilesByShape maps a shape ID to the files that apply a trait
	// onto it (excluding its own defining file).
	applyFilesByShape map[string]map[string]bool
	// fileAppliesTo maps a file to the shape IDs it applies traits onto.
	fileAppliesTo map[string]map[string]bool
	// metadataFiles maps a metadata key to the files contributing to it.
	metadataFiles map[string]map[string]bool
	// fileMetadataKeys maps a file to the metadata keys it contributes to.
	fileMetadataKeys map[string]map[string]bool
}

func newRebuildIndex() *rebuildIndex {
	return &rebuildIndex{
		definedShapes:     map[string]map[string]bool{},
		shapeFile:         map[string]string{},
		applyFilesByShape: map[string]map[string]bool{},
		fileAppliesTo:     map[string]map[string]bool{},
		metadataFiles:     map[string]map[string]bool{},
		fileMetadataKeys:  map[string]map[string]bool{},
	}
}

// buildRebuildIndex walks an assembled model and its source traits to
// recover the per-file adjacency the model itself doesn't retain
// directly: which file defines which shape, and which other files
// applied traits onto it.
func buildRebuildIndex(model *assembly.Model) *rebuildIndex {
	idx := newRebuildIndex()
	for id, shape := range model.Shapes {
		if shape.Location.IsNone() {
			continue
		}
		def := shape.Location.File
		idx.shapeFile[id] = def
		addTo(idx.definedShapes, def, id)

		for _, tr := range shape.Traits {
			if tr.Location.IsNone() || tr.Location.File == def {
				continue
			}
			addTo(idx.applyFilesByShape, id, tr.Location.File)
			addTo(idx.fileAppliesTo, tr.Location.File, id)
		}
	}
	for key, md := range model.Metadata {
		for _, c := range md.Contributions {
			addTo(idx.metadataFiles, key, c.File)
			addTo(idx.fileMetadataKeys, c.File, key)
		}
	}
	return idx
}

func addTo(m map[string]map[string]bool, key, value string) {
	set, ok := m[key]
	if !ok {
		set = map[string]bool{}
		m[key] = set
	}
	set[value] = true
}

// neighbors returns the files directly co-dependent with file under
// idx: files that define a shape file applies traits onto, files that
// apply traits onto a shape file defines, and files sharing a metadata
// array key with file.
func (idx *rebuildIndex) neighbors(file string) map[string]bool {
	out := map[string]bool{}
	for shapeID := range idx.fileAppliesTo[file] {
		if def, ok := idx.shapeFile[shapeID]; ok && def != file {
			out[def] = true
		}
	}
	for shapeID := range idx.definedShapes[file] {
		for applier := range idx.applyFilesByShape[shapeID] {
			if applier != file {
				out[applier] = true
			}
		}
	}
	for key := range idx.fileMetadataKeys[file] {
		for other := range idx.metadataFiles[key] {
			if other != file {
				out[other] = true
			}
		}
	}
	return out
}

// closure computes D: the set of files co-dependent with start,
// following the neighbor edges transitively via a worklist. D always
// contains start.
func (idx *rebuildIndex) closure(start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		for n := range idx.neighbors(f) {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return visited
}

// Project is the assembled state of one smithy-build.json worth of
// sources: its config, its tracked files, and the most recent
// ValidatedResult along with the adjacency needed to update it
// incrementally as individual files change.
type Project struct {
	Root   string
	Type   Type
	Config *BuildConfig

	files    map[string]*File
	result   *assembly.ValidatedResult
	index    *rebuildIndex
	assembler assembly.Assembler
}

// New creates an empty project of the given type rooted at root.
func New(root string, typ Type, cfg *BuildConfig) *Project {
	return &Project{
		Root:      root,
		Type:      typ,
		Config:    cfg,
		files:     map[string]*File{},
		assembler: assembly.New(),
		result:    &assembly.ValidatedResult{Model: assembly.NewModel()},
		index:     newRebuildIndex(),
	}
}

// Files returns every file this project tracks.
func (p *Project) Files() map[string]*File { return p.files }

// File returns the tracked file at path, or nil.
func (p *Project) File(path string) *File { return p.files[path] }

// AddFile starts tracking a file without reassembling; callers should
// follow with Build or UpdateFile once all initial files are added.
func (p *Project) AddFile(f *File) { p.files[f.path] = f }

// RemoveFile stops tracking a file. Callers should follow with
// UpdateFile(path) (after removal, so the assembler retracts its
// contribution) to reconcile the model.
func (p *Project) RemoveFile(path string) { delete(p.files, path) }

// Result returns the most recent assembly result.
func (p *Project) Result() *assembly.ValidatedResult { return p.result }

// Build performs a full assembly of every tracked IDL file, replacing
// the current model and rebuild index outright. Used on project load
// and whenever the source file set itself changes (config reload).
func (p *Project) Build(validate bool) (*assembly.ValidatedResult, error) {
	var sources []assembly.SourceFile
	for path, f := range p.files {
		if f.IsIDL() {
			sources = append(sources, assembly.SourceFile{Path: path, Text: f.Doc.CopyText()})
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })

	res, err := p.assembler.Assemble(sources, validate)
	if err != nil {
		return nil, fmt.Errorf("project: assembling %s: %w", p.Root, err)
	}
	p.result = res
	p.index = buildRebuildIndex(res.Model)
	p.syncNamespaces()
	return res, nil
}

// UpdateFile performs the incremental reassembly algorithm described for
// a single changed, added, or removed file at path:
//
//  1. Compute D, the closure of path under the rebuild index's
//     co-dependency edges (always includes path itself).
//  2. Seed a carry-over model from the current result, retracting every
//     shape and metadata contribution attributable to a file in D.
//  3. Reparse exactly D's current text (files removed from the project
//     are fed as empty text, which is equivalent to deletion for
//     retraction purposes) and merge the result.
//  4. Rebuild the adjacency index from the new model and store it.
//
// This never rescans files outside D, bounding the update's cost by the
// size of the co-dependent set rather than the whole project.
func (p *Project) UpdateFile(path string, validate bool) (*assembly.ValidatedResult, error) {
	d := p.index.closure(path)

	var sources []assembly.SourceFile
	var order []string
	for f := range d {
		order = append(order, f)
	}
	sort.Strings(order)
	for _, f := range order {
		text := ""
		if tracked, ok := p.files[f]; ok {
			text = tracked.Doc.CopyText()
		}
		sources = append(sources, assembly.SourceFile{Path: f, Text: text})
	}

	base := p.result.Model
	if base == nil {
		base = assembly.NewModel()
	}
	res, err := p.assembler.Rebuild(base, sources, validate)
	if err != nil {
		return nil, fmt.Errorf("project: rebuilding %s from %s: %w", p.Root, path, err)
	}
	p.result = res
	p.index = buildRebuildIndex(res.Model)
	p.syncNamespaces()
	return res, nil
}

// syncNamespaces refreshes each tracked IDL file's last-known namespace
// from the current model (the namespace of a shape the model locates in
// that file).
func (p *Project) syncNamespaces() {
	if p.result == nil || p.result.Model == nil {
		return
	}
	for id, shape := range p.result.Model.Shapes {
		f, ok := p.files[shape.Location.File]
		if !ok {
			continue
		}
		if i := lastHash(id); i >= 0 {
			f.Namespace = id[:i]
		}
	}
}

func lastHash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '#' {
			return i
		}
	}
	return -1
}
