// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"stackctl/internal/config"
	"stackctl/internal/container"
	"stackctl/internal/envset"
	"stackctl/internal/imagebuild"
	"stackctl/internal/lifecycle"
	"stackctl/internal/lock"
	"stackctl/internal/privilege"
	"stackctl/internal/topology"
	"stackctl/internal/volume"

	"github.com/charmbracelet/log"
)

type (
	// EngineFactory returns the container engine for the configured preference.
	EngineFactory func(preferred config.ContainerEngine) (container.Engine, error)

	// App wires CLI services and shared dependencies. All command handlers
	// receive an App and build their collaborators through it.
	App struct {
		Config    config.Provider
		NewEngine EngineFactory
		// Privilege options are passed to privilege.Resolve.
		Privilege []privilege.Option
		WorkDir   string
		stdout    io.Writer
		stderr    io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    config.Provider
		NewEngine EngineFactory
		Privilege []privilege.Option
		WorkDir   string
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// globalFlags are the persistent flags of the root command.
	globalFlags struct {
		configPath string
		envFile    string
		verbose    bool
		dryRun     bool
	}

	// session is one invocation's resolved stack: configuration, environment
	// set and every collaborator the targets drive. It holds the stack lock
	// until Close.
	session struct {
		cfg        *config.Config
		env        *envset.Environment
		engine     container.Engine
		builder    *imagebuild.Builder
		topologies *topology.Set
		graph      *lifecycle.Graph
		logger     *log.Logger
		lock       *lock.Lock
		closers    []func() error
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewEngine == nil {
		deps.NewEngine = defaultEngine
	}

	return &App{
		Config:    deps.Config,
		NewEngine: deps.NewEngine,
		Privilege: deps.Privilege,
		WorkDir:   deps.WorkDir,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}, nil
}

func defaultEngine(preferred config.ContainerEngine) (container.Engine, error) {
	return container.NewEngine(container.EngineType(preferred))
}

// newLogger builds the invocation logger. Library packages receive it through
// their WithLogger options.
func (a *App) newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "stackctl",
		ReportTimestamp: true,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// loadConfig loads stack.cue. ui.verbose applies when --verbose is not set.
func (a *App) loadConfig(ctx context.Context, flags *globalFlags) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: flags.configPath,
		BaseDir:        a.WorkDir,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UI.Verbose {
		flags.verbose = true
	}
	return cfg, nil
}

// envPath returns the environment set file: --env-file, else the configured env_file.
func envPath(cfg *config.Config, flags *globalFlags) string {
	if flags.envFile != "" {
		return flags.envFile
	}
	return cfg.Resolve(cfg.EnvFile)
}

// openSession resolves everything a target needs. The environment set is
// resolved before any other collaborator so a missing key fails before any
// side effect; the stack lock is taken next.
func (a *App) openSession(ctx context.Context, flags *globalFlags) (_ *session, err error) {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return nil, err
	}
	logger := a.newLogger(flags.verbose)

	env, err := envset.Resolve(ctx, envPath(cfg, flags))
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved environment set", "path", env.Path(), "version", env.Version())

	set, err := volume.NewSet(cfg.Resolve(cfg.Volumes.Root))
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, env: env, logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.lock, err = lock.Acquire(lock.PathFor(set.Root())); err != nil {
		return nil, err
	}

	privOpts := append([]privilege.Option{privilege.WithLogger(logger)}, a.Privilege...)
	priv, err := privilege.Resolve(privOpts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved privilege", "invoking", priv.Invoking(), "target", priv.Target(), "escalation", priv.RequiresEscalation())
	provisioner := volume.NewProvisioner(set, priv, volume.WithLogger(logger))

	if s.engine, err = a.NewEngine(cfg.ContainerEngine); err != nil {
		return nil, err
	}
	if logger.GetLevel() <= log.DebugLevel {
		logEngine(ctx, logger, s.engine)
	}
	s.builder = imagebuild.NewBuilder(s.engine, cfg,
		imagebuild.WithLogger(logger),
		imagebuild.WithInspector(s.inspector(ctx)),
		imagebuild.WithOutput(a.stdout, a.stderr),
	)

	if s.topologies, err = topology.NewSet(cfg, env.Path()); err != nil {
		return nil, err
	}
	runnerOpts := []topology.RunnerOption{topology.WithLogger(logger), topology.WithOutput(a.stdout, a.stderr)}

	s.graph, err = lifecycle.NewStack(lifecycle.Deps{
		Volumes:     provisioner,
		Builder:     s.builder,
		Env:         env,
		Stages:      cfg.StageNames(),
		Production:  topology.NewRunner(s.engine, s.topologies.Production, runnerOpts...),
		Development: topology.NewRunner(s.engine, s.topologies.Development, runnerOpts...),
		SourceDir:   s.topologies.SourceDir,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// logEngine records which engine and version will run the stack.
func logEngine(ctx context.Context, logger *log.Logger, engine container.Engine) {
	version, err := engine.Version(ctx)
	if err != nil {
		logger.Debug("container engine version unknown", "engine", engine.Name(), "error", err)
		return
	}
	logger.Debug("using container engine", "engine", engine.Name(), "version", version)
}

// inspector reads cache labels through the Docker API when the engine is
// docker and the daemon answers a ping, otherwise through the engine CLI.
func (s *session) inspector(ctx context.Context) container.ImageInspector {
	inspector, closeFn, err := container.InspectorFor(ctx, s.engine)
	if err != nil {
		s.logger.Debug("docker API unavailable, inspecting through the CLI", "error", err)
	}
	s.closers = append(s.closers, closeFn)
	return inspector
}

// runTarget runs name after a topology pre-flight when its chain issues
// compose verbs.
func (s *session) runTarget(ctx context.Context, name string) error {
	order, err := s.graph.Order(name)
	if err != nil {
		return err
	}
	if usesCompose(order) {
		report, err := topology.Validate(ctx, s.topologies, s.env)
		if err != nil {
			return err
		}
		s.logger.Debug("validated topologies", "services", strings.Join(report.Services, ","), "overlay_mounts", strings.Join(report.OverlayMounts, ","))
	}
	return s.graph.Run(ctx, name)
}

// Close releases the API connection and the stack lock.
func (s *session) Close() {
	for _, c := range slices.Backward(s.closers) {
		if err := c(); err != nil {
			s.logger.Debug("close failed", "error", err)
		}
	}
	s.closers = nil
	s.lock.Release()
}

// usesCompose reports whether any target in order runs a compose verb.
func usesCompose(order []string) bool {
	for _, n := range order {
		switch strings.TrimPrefix(n, lifecycle.DevPrefix) {
		case "up", "down", "down-v", "rebuild", "rebuild-all":
			return true
		}
	}
	return false
}

// catalogGraph is the target graph without collaborators, used for listing
// and dry runs.
func catalogGraph(stages []string) (*lifecycle.Graph, error) {
	g := lifecycle.NewGraph()
	for _, t := range lifecycle.Catalog(stages) {
		if err := g.Add(t); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target catalog: %w", err)
	}
	return g, nil
}
