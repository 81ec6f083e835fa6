package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/milesziemer/smithy-language-server/internal/assembly"
	"github.com/milesziemer/smithy-language-server/internal/resolver"
)

// Loader discovers and assembles a Project from a workspace root,
// following the same attach/detach/empty/unresolved outcomes
// ServerState's tryInitProject distinguishes when an editor opens a
// folder or a loose file.
type Loader struct {
	resolver resolver.DependencyResolver
}

// NewLoader returns the default project loader, backed by a
// non-networked Maven resolver (internal/resolver.LocalBackend) cached
// under the user's cache directory.
func NewLoader() *Loader {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	backend := &resolver.LocalBackend{CacheDir: filepath.Join(dir, "smithy-language-server", "maven")}
	return &Loader{resolver: resolver.New(backend)}
}

// Load builds a project rooted at root. A config load or glob-expansion
// failure produces a TypeUnresolved project (still usable as a
// placeholder so the server has something to attach open files to) and
// a non-nil error describing why.
func (l *Loader) Load(root string) (*Project, error) {
	cfg, err := LoadConfig(root)
	if err != nil {
		return New(root, TypeUnresolved, nil), err
	}

	sources, err := ResolveAllSources(root, cfg)
	if err != nil {
		return New(root, TypeUnresolved, cfg), err
	}

	typ := TypeNormal
	if len(sources) == 0 {
		typ = TypeEmpty
	}

	p := New(root, typ, cfg)
	buildPath := filepath.Join(root, "smithy-build.json")
	for _, configPath := range []string{
		buildPath,
		filepath.Join(root, ".smithy-project.json"),
	} {
		if text, ok := readFile(configPath); ok {
			p.AddFile(NewFile(configPath, KindBuild, text))
		}
	}
	for _, path := range sources {
		text, ok := readFile(path)
		if !ok {
			continue
		}
		p.AddFile(NewFile(path, KindIDL, text))
	}

	if _, err := p.Build(true); err != nil {
		return p, err
	}

	l.resolveMaven(p, buildPath, cfg)
	return p, nil
}

// resolveMaven resolves cfg's Maven dependencies, if any, and attaches a
// diagnostic to the project's build file on failure rather than failing
// the whole load — an unresolved dependency shouldn't prevent the rest
// of the model from being usable.
func (l *Loader) resolveMaven(p *Project, buildPath string, cfg *BuildConfig) {
	if len(cfg.Maven.Dependencies) == 0 {
		return
	}
	if _, err := l.resolver.Resolve(context.Background(), cfg.Maven.Dependencies, cfg.Maven.RepositoryURLs()); err != nil {
		if p.result == nil {
			p.result = &assembly.ValidatedResult{Model: assembly.NewModel()}
		}
		p.result.Events = append(p.result.Events, assembly.ValidationEvent{
			Severity: assembly.SeverityError,
			Message:  fmt.Sprintf("resolving maven dependencies: %v", err),
			Location: assembly.SourceLocation{File: buildPath, Line: 1},
		})
	}
}

// LoadDetached builds a single-file project for path, used when an
// editor opens a Smithy file that no workspace project's sources cover.
func (l *Loader) LoadDetached(path, text string) *Project {
	p := New(filepath.Dir(path), TypeDetached, &BuildConfig{Sources: []string{path}})
	p.AddFile(NewFile(path, KindIDL, text))
	_, _ = p.Build(true)
	return p
}

func readFile(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// MatchesSources reports whether path would be included if p's sources
// were re-resolved right now, without actually doing so — used to
// decide whether a newly created file on disk belongs to this project
// before it has been added to Files().
func (p *Project) MatchesSources(path string) bool {
	if p.Config == nil {
		return false
	}
	sources, err := ResolveAllSources(p.Root, p.Config)
	if err != nil {
		return false
	}
	for _, s := range sources {
		if s == path {
			return true
		}
	}
	return false
}

// Covers reports whether p currently tracks path as one of its files. Used by
// ServerState's reattachment logic: when a workspace folder is added or
// a project's config changes, every detached project's file is checked
// against the new/changed project's coverage to decide whether it
// should be folded in.
func (p *Project) Covers(path string) bool {
	_, ok := p.files[path]
	return ok
}
