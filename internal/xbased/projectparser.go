package xbased

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectDefinition is the metadata spec.md §1 says is yielded by "the
// Xcode project parser" — explicitly out of scope, "specified only through
// the interfaces the core consumes". ParseProjectDefinition below is a
// minimal, good-enough-to-drive-the-daemon implementation of that
// interface: it locates the .xcodeproj/.xcworkspace and derives a name, but
// does not attempt to parse project.pbxproj for a full target/platform
// graph (that parser is the real external collaborator).
type ProjectDefinition struct {
	Name         string
	HasWorkspace bool
	// Targets maps a target name to a platform tag (e.g. "iOS", "macOS").
	// ParseProjectDefinition always leaves it empty, since deriving it from
	// project.pbxproj is out of scope here; newXcodeProject merges any
	// .xbase.yml target overrides on top of it.
	Targets map[string]string
}

// ParseProjectDefinition resolves the project kind from root's contents,
// per spec.md §4.2 add(): "resolves the project kind from the root's
// contents". Returns DefinitionLocatingError when neither an .xcodeproj nor
// an .xcworkspace is present.
func ParseProjectDefinition(root string) (*ProjectDefinition, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, unexpected("reading project root", err)
	}

	var workspace, xcodeproj string
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".xcworkspace"):
			workspace = name
		case strings.HasSuffix(name, ".xcodeproj"):
			xcodeproj = name
		}
	}

	switch {
	case workspace != "":
		return &ProjectDefinition{
			Name:         strings.TrimSuffix(workspace, ".xcworkspace"),
			HasWorkspace: true,
			Targets:      map[string]string{},
		}, nil
	case xcodeproj != "":
		return &ProjectDefinition{
			Name:         strings.TrimSuffix(xcodeproj, ".xcodeproj"),
			HasWorkspace: false,
			Targets:      map[string]string{},
		}, nil
	default:
		return nil, &DefinitionLocatingError{Root: root}
	}
}

// cacheRoot computes the per-project build-cache directory spec.md §4.7
// appends as SYMROOT, and whose children (indexStorePath, indexDatabasePath)
// spec.md §6 says are "owned by the indexer, not this system".
func cacheRoot(root, name string) string {
	return filepath.Join(os.TempDir(), "xbase", sanitizeForPath(root)+"-"+name)
}

// CacheRoot is the exported form of cacheRoot, used by cmd/xbase-sourcekit
// to derive indexStorePath/indexDatabasePath for a root without depending
// on the daemon's in-memory Project model (the BSP server is a separate
// process, spec.md §1).
func CacheRoot(root, name string) string { return cacheRoot(root, name) }

func sanitizeForPath(s string) string {
	r := strings.NewReplacer("/", "_", " ", "_")
	return r.Replace(strings.Trim(s, "/"))
}
