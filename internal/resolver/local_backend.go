package resolver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// LocalBackend resolves a Maven coordinate to a path under a local
// cache directory, without performing any network access. It models
// the shape of a real resolver (group:artifact:version -> a jar on
// disk) without depending on a Maven client library absent from this
// module's dependency surface; a networked backend can be substituted
// via the same Backend interface without touching Resolver.
type LocalBackend struct {
	CacheDir string
}

// ResolveOnce turns "group:artifact:version" into CacheDir/group/artifact/version/artifact-version.jar.
func (b *LocalBackend) ResolveOnce(_ context.Context, coordinate string, _ []string) (Dependency, error) {
	parts := strings.Split(coordinate, ":")
	if len(parts) != 3 {
		return Dependency{}, fmt.Errorf("resolver: malformed coordinate %q, want group:artifact:version", coordinate)
	}
	group, artifact, version := parts[0], parts[1], parts[2]
	path := filepath.Join(b.CacheDir, filepath.Join(strings.Split(group, ".")...), artifact, version, fmt.Sprintf("%s-%s.jar", artifact, version))
	return Dependency{Coordinate: coordinate, Path: path}, nil
}
