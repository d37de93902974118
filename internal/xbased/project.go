package xbased

import (
	"context"
	"log/slog"
)

// Project is the polymorphic capability set spec.md §4.2 describes:
// {root, name, targets, clients, watchignore, generate, build, run,
// update_compile_database, should_generate}. The concrete xcodeProject
// below is the only variant implemented here (the generic xcodeproj-only
// variant spec.md mentions); downstream code depends only on this
// interface so additional variants can be added without touching the
// registry, dispatcher, or WatchService.
type Project interface {
	Root() string
	Name() string
	Kind() string
	Targets() map[string]string
	WatchIgnore() []string
	ConfigPath() string

	Clients() []PID
	addClient(pid PID)
	removeClient(pid PID) (empty bool)

	ShouldGenerate(ev Event) bool
	Build(ctx context.Context, settings BuildSettings) (StepStream, string, error)
	Run(ctx context.Context, settings BuildSettings, device *Device) (Runner, error)
	UpdateCompileDatabase(ctx context.Context) (bool, error)
}

// xcodeProject is the generic xcodeproj/xcworkspace-only Project variant.
type xcodeProject struct {
	root         string
	name         string
	hasWorkspace bool
	targets      map[string]string
	ignore       []string
	configPath   string

	clients []PID

	log *slog.Logger
}

func newXcodeProject(root string, def *ProjectDefinition, cfg *ProjectConfig, configPath string, log *slog.Logger) *xcodeProject {
	targets := make(map[string]string, len(def.Targets)+len(cfg.Targets))
	for k, v := range def.Targets {
		targets[k] = v
	}
	for k, v := range cfg.Targets {
		targets[k] = v
	}

	ignore := append([]string{}, defaultIgnoreGlobs...)
	ignore = append(ignore, cfg.Ignore...)

	return &xcodeProject{
		root:         root,
		name:         def.Name,
		hasWorkspace: def.HasWorkspace,
		targets:      targets,
		ignore:       ignore,
		configPath:   configPath,
		log:          log.With("project", def.Name, "root", root),
	}
}

func (p *xcodeProject) Root() string               { return p.root }
func (p *xcodeProject) Name() string                { return p.name }
func (p *xcodeProject) Kind() string                { return "xcodeproj" }
func (p *xcodeProject) Targets() map[string]string  { return p.targets }
func (p *xcodeProject) WatchIgnore() []string        { return p.ignore }
func (p *xcodeProject) ConfigPath() string          { return p.configPath }
func (p *xcodeProject) Clients() []PID {
	out := make([]PID, len(p.clients))
	copy(out, p.clients)
	return out
}

func (p *xcodeProject) addClient(pid PID) {
	for _, existing := range p.clients {
		if existing == pid {
			return
		}
	}
	p.clients = append(p.clients, pid)
}

// removeClient drops pid and reports whether the client list is now empty,
// the refcount invariant's trigger for project removal (spec.md §3, §4.2).
func (p *xcodeProject) removeClient(pid PID) bool {
	for i, existing := range p.clients {
		if existing == pid {
			p.clients = append(p.clients[:i], p.clients[i+1:]...)
			break
		}
	}
	return len(p.clients) == 0
}

// ShouldGenerate is the guard the compile-database refresher consults
// (spec.md §4.7): true for create/remove/rename, false for content updates.
func (p *xcodeProject) ShouldGenerate(ev Event) bool {
	return ev.IsCreate() || ev.IsRemove() || ev.IsRename()
}

func (p *xcodeProject) Build(ctx context.Context, settings BuildSettings) (StepStream, string, error) {
	root := cacheRoot(p.root, p.name)
	args := buildArgs(p, settings, root)
	stream, err := runXcodebuild(ctx, p.root, args)
	invocation := "xcodebuild"
	for _, a := range args {
		invocation += " " + a
	}
	if err != nil {
		return nil, invocation, err
	}
	return stream, invocation, nil
}

func (p *xcodeProject) Run(ctx context.Context, settings BuildSettings, device *Device) (Runner, error) {
	platform := p.targets[settings.Method.Name()]
	return runnerFor(platform, p, settings, device), nil
}

func (p *xcodeProject) UpdateCompileDatabase(ctx context.Context) (bool, error) {
	return updateCompileDatabase(ctx, p)
}
