package xbased

import (
	"log/slog"
)

// ProjectRegistry is the mapping from project root to Project, per
// spec.md §3/§4.2. All mutation happens under the shared State mutex.
type ProjectRegistry struct {
	projects map[string]Project
	log      *slog.Logger
}

func newProjectRegistry(log *slog.Logger) *ProjectRegistry {
	return &ProjectRegistry{projects: make(map[string]Project), log: log}
}

// add resolves the project kind from root's contents, constructs it, and
// inserts it — or, if root already exists, appends pid to its client list
// (spec.md §4.2).
func (r *ProjectRegistry) add(root string, pid PID) (Project, error) {
	if existing, ok := r.projects[root]; ok {
		existing.addClient(pid)
		return existing, nil
	}

	def, err := ParseProjectDefinition(root)
	if err != nil {
		return nil, err
	}
	cfg, configPath, err := loadProjectConfig(root)
	if err != nil {
		return nil, err
	}

	proj := newXcodeProject(root, def, cfg, configPath, r.log)
	proj.addClient(pid)
	r.projects[root] = proj
	r.log.Info("project registered", "root", root, "name", def.Name)
	return proj, nil
}

func (r *ProjectRegistry) get(root string) (Project, error) {
	p, ok := r.projects[root]
	if !ok {
		return nil, newNotFound(KindProject, root)
	}
	return p, nil
}

// remove drops pid from root's project client list; if the list becomes
// empty, the project is removed and returned so the caller can tear down
// its WatchService (spec.md §4.2, and the "join the WatchService task on
// removal" open item resolved in SPEC_FULL.md §6).
func (r *ProjectRegistry) remove(root string, pid PID) (Project, bool) {
	p, ok := r.projects[root]
	if !ok {
		return nil, false
	}
	if p.removeClient(pid) {
		delete(r.projects, root)
		r.log.Info("project removed", "root", root)
		return p, true
	}
	return nil, false
}
