package project

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// buildConfigSchema is a deliberately small JSON Schema covering the
// fields this package actually reads out of smithy-build.json. It
// exists to catch malformed config early with a clear diagnostic rather
// than failing confusingly deep inside glob expansion.
const buildConfigSchema = `{
  "type": "object",
  "properties": {
    "version": {"type": "string"},
    "sources": {"type": "array", "items": {"type": "string"}},
    "imports": {"type": "array", "items": {"type": "string"}},
    "outputDirectory": {"type": "string"},
    "maven": {
      "type": "object",
      "properties": {
        "dependencies": {"type": "array", "items": {"type": "string"}},
        "repositories": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {"url": {"type": "string"}}
          }
        }
      }
    }
  }
}`

// MavenRepository is one entry of maven.repositories: a URL plus
// whatever else the real build tool accepts there (credentials,
// proxying). The resolver only ever consumes the URL.
type MavenRepository struct {
	URL string `koanf:"url"`
}

// MavenConfig names the Maven coordinates this project depends on and
// the repositories to resolve them from; passed through to the
// dependency resolver unmodified.
type MavenConfig struct {
	Dependencies []string          `koanf:"dependencies"`
	Repositories []MavenRepository `koanf:"repositories"`
}

// RepositoryURLs extracts the bare URLs from Repositories, the shape
// resolver.DependencyResolver.Resolve actually consumes.
func (m MavenConfig) RepositoryURLs() []string {
	urls := make([]string, 0, len(m.Repositories))
	for _, r := range m.Repositories {
		urls = append(urls, r.URL)
	}
	return urls
}

// BuildConfig is the parsed, schema-validated contents of
// smithy-build.json, after any .smithy-project.json override has been
// applied.
type BuildConfig struct {
	Version         string      `koanf:"version"`
	Sources         []string    `koanf:"sources"`
	Imports         []string    `koanf:"imports"`
	OutputDirectory string      `koanf:"outputDirectory"`
	Maven           MavenConfig `koanf:"maven"`
}

type projectOverride struct {
	Sources []string `koanf:"sources"`
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("smithy-build.schema.json", strings.NewReader(buildConfigSchema)); err != nil {
		return nil, fmt.Errorf("project: compiling config schema: %w", err)
	}
	s, err := c.Compile("smithy-build.schema.json")
	if err != nil {
		return nil, fmt.Errorf("project: compiling config schema: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// LoadConfig reads smithy-build.json (if present) from root, validates
// it against the schema above, and applies a .smithy-project.json
// override when present. Unlike every other merge in this system,
// .smithy-project.json's "sources" list, when non-empty, *replaces*
// smithy-build.json's sources rather than unioning with them — a
// project narrowing its sources in the editor-only override is
// expressing "only look at this subset while I work," not "also look
// at this subset."
func LoadConfig(root string) (*BuildConfig, error) {
	k := koanf.New(".")
	// Seed the one default smithy-build.json omits in practice: a
	// project with no config at all still treats ./model as its source
	// root, same as the real build tool.
	if err := k.Load(confmap.Provider(map[string]any{"sources": []string{"model"}}, "."), nil); err != nil {
		return nil, fmt.Errorf("project: seeding default config: %w", err)
	}

	buildPath := filepath.Join(root, "smithy-build.json")
	if raw, ok, err := readJSON(buildPath); err != nil {
		return nil, err
	} else if ok {
		if err := validate(raw); err != nil {
			return nil, fmt.Errorf("project: %s: %w", buildPath, err)
		}
		if err := k.Load(file.Provider(buildPath), koanfjson.Parser()); err != nil {
			return nil, fmt.Errorf("project: loading %s: %w", buildPath, err)
		}
	}

	cfg := &BuildConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("project: unmarshaling %s: %w", buildPath, err)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []string{"model"}
	}

	overridePath := filepath.Join(root, ".smithy-project.json")
	if _, ok, err := readJSON(overridePath); err != nil {
		return nil, err
	} else if ok {
		k := koanf.New(".")
		if err := k.Load(file.Provider(overridePath), koanfjson.Parser()); err != nil {
			return nil, fmt.Errorf("project: loading %s: %w", overridePath, err)
		}
		var override projectOverride
		if err := k.Unmarshal("", &override); err != nil {
			return nil, fmt.Errorf("project: unmarshaling %s: %w", overridePath, err)
		}
		if len(override.Sources) > 0 {
			cfg.Sources = override.Sources
		}
	}

	return cfg, nil
}

func readJSON(path string) (raw []byte, ok bool, err error) {
	raw, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("project: reading %s: %w", path, err)
	}
	return raw, true, nil
}

func validate(raw []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("parsing json: %w", err)
	}
	return s.Validate(v)
}

// ResolveSources expands cfg's source globs (relative to root) into an
// absolute, deduplicated, sorted list of .smithy files on disk.
func ResolveSources(root string, cfg *BuildConfig) ([]string, error) {
	return resolvePatterns(root, cfg.Sources)
}

// ResolveImports expands cfg's import globs the same way ResolveSources
// expands sources. smithy-build.json's "imports" list names additional
// models to fold into the project without being considered part of its
// own source tree (no formatting/codegen obligations), but for this
// server's purposes — tracking which files are part of the model being
// assembled — sources and imports are unioned identically.
func ResolveImports(root string, cfg *BuildConfig) ([]string, error) {
	return resolvePatterns(root, cfg.Imports)
}

// ResolveAllSources returns the deduplicated, sorted union of
// ResolveSources and ResolveImports — the full set of files a Project
// must track per §4.3/§4.4.1's "sources and imports become tracked
// files" requirement.
func ResolveAllSources(root string, cfg *BuildConfig) ([]string, error) {
	sources, err := ResolveSources(root, cfg)
	if err != nil {
		return nil, err
	}
	imports, err := ResolveImports(root, cfg)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(sources)+len(imports))
	out := make([]string, 0, len(sources)+len(imports))
	for _, path := range sources {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	for _, path := range imports {
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func resolvePatterns(root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	fsys := os.DirFS(root)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, joinGlob(pattern))
		if err != nil {
			return nil, fmt.Errorf("project: expanding source pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			// pattern may itself be a concrete .smithy file or directory
			// rather than a glob; fall through and let the caller see
			// an empty result only if the path truly doesn't exist.
			if abs := filepath.Join(root, pattern); isSmithyFile(abs) {
				if !seen[abs] {
					seen[abs] = true
					out = append(out, abs)
				}
				continue
			}
		}
		for _, m := range matches {
			abs := filepath.Join(root, m)
			if !isSmithyFile(abs) {
				continue
			}
			if !seen[abs] {
				seen[abs] = true
				out = append(out, abs)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func isSmithyFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil && info.IsDir() {
			return walkHasSmithy(path)
		}
		return false
	}
	return IsIDLFile(path)
}

func walkHasSmithy(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if IsIDLFile(path) {
			found = true
		}
		return nil
	})
	return found
}

// joinGlob turns a bare directory name like "model" into "model/**" so
// doublestar recurses into it, matching smithy-build.json's convention
// that a sources entry naming a directory means "everything under it."
func joinGlob(pattern string) string {
	if strings.ContainsAny(pattern, "*?[") {
		return pattern
	}
	return strings.TrimSuffix(pattern, "/") + "/**"
}
