// Command ci-repair drives the Supervisor against a batch of failing CI
// workflow run-groups described in a JSON run-group file. Grounded on the
// teacher's cmd/kilroy/main.go: a hand-rolled os.Args subcommand dispatch
// (no CLI framework) plus a SIGINT/SIGTERM-to-context.CancelCause bridge.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cirepair/orchestrator/internal/adapters"
	"github.com/cirepair/orchestrator/internal/config"
	"github.com/cirepair/orchestrator/internal/graph"
	"github.com/cirepair/orchestrator/internal/graphstate"
	"github.com/cirepair/orchestrator/internal/ports"
	"github.com/cirepair/orchestrator/internal/reposcache"
	"github.com/cirepair/orchestrator/internal/sandbox"
	"github.com/cirepair/orchestrator/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Println("ci-repair (development build)")
		os.Exit(0)
	case "run":
		if err := runCommand(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "ci-repair run:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  ci-repair --version")
	fmt.Fprintln(os.Stderr, "  ci-repair run --config <run.yaml> --groups <groups.json>")
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the run-configuration file (YAML or JSON)")
	groupsPath := fs.String("groups", "", "path to a JSON array of run-groups to repair")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" || *groupsPath == "" {
		return fmt.Errorf("both --config and --groups are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	groups, err := loadRunGroups(*groupsPath)
	if err != nil {
		return err
	}

	sup, err := buildSupervisor(cfg)
	if err != nil {
		return err
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	results := sup.RunGroups(ctx, groups)
	failures := 0
	for _, r := range results {
		status := "success"
		if r.Err != nil {
			status = "error: " + r.Err.Error()
			failures++
		} else if r.State != nil && r.State.Status == graphstate.StatusFailed {
			status = "failed: " + r.State.Message
			failures++
		}
		fmt.Printf("%s: %s\n", r.GroupID, status)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d run-groups did not succeed", failures, len(results))
	}
	return nil
}

func loadRunGroups(path string) ([]graphstate.RunGroup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run-groups file: %w", err)
	}
	var groups []graphstate.RunGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("decode run-groups file: %w", err)
	}
	return groups, nil
}

func buildSupervisor(cfg *config.RunConfig) (*supervisor.Supervisor, error) {
	persistence, err := buildPersistence(cfg.Persistence)
	if err != nil {
		return nil, err
	}
	metrics, err := buildMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	baseDeps := graph.HandlerDeps{
		LanguageModel:       buildLanguageModel(cfg.LanguageModel),
		Classifier:          adapters.KeywordClassifier{},
		ComplexityEstimator: adapters.TrendEstimator{},
		FileDiscovery:       adapters.GlobFileDiscovery{},
		MetricsSink:         metrics,
		Persistence:         persistence,
		TestSelector:        adapters.ExtensionTestSelector{},
	}
	if cfg.LogSource.BaseURL != "" {
		baseDeps.LogSource = &adapters.HTTPLogSource{
			BaseURL: cfg.LogSource.BaseURL,
			Token:   os.Getenv(cfg.LogSource.TokenEnv),
		}
	}

	sandboxBaseDir := cfg.Sandbox.BaseDir
	sup := supervisor.New(baseDeps, func(ctx context.Context, g graphstate.RunGroup) (ports.Sandbox, error) {
		return sandbox.New(sandboxBaseDir)
	})
	sup.Concurrency = cfg.Concurrency
	sup.ReposCache = &reposcache.Cache{}
	sup.FetchContext = func(ctx context.Context, repoURL, headSHA string) (reposcache.Context, error) {
		return fetchRepoContext(ctx, sandboxBaseDir, repoURL, headSHA)
	}
	return sup, nil
}

// fetchRepoContext reads repo-manifest.json and .github/workflows/ci.yml
// from a fresh, empty short-lived sandbox. repoURL and headSHA are not used
// to fetch or check out anything and no command is run, so both fields come
// back empty and FaultLocalization is false. It is
// only called once per distinct (repoURL, headSHA) across an entire batch —
// supervisor.Supervisor caches the result in ReposCache for every other
// group that shares the same commit.
func fetchRepoContext(ctx context.Context, sandboxBaseDir, repoURL, headSHA string) (reposcache.Context, error) {
	sb, err := sandbox.New(sandboxBaseDir)
	if err != nil {
		return reposcache.Context{}, err
	}
	defer func() { _ = sb.Teardown(context.WithoutCancel(ctx)) }()

	manifest, _ := sb.ReadFile(ctx, "repo-manifest.json")
	workflow, _ := sb.ReadFile(ctx, ".github/workflows/ci.yml")
	return reposcache.Context{
		WorkflowFileContent: workflow,
		RepoManifest:        manifest,
		FaultLocalization:   manifest != "",
	}, nil
}

func buildLanguageModel(lmCfg config.LanguageModelConfig) ports.LanguageModel {
	provider := &adapters.HTTPProvider{
		ProviderName: lmCfg.Provider,
		Endpoint:     lmCfg.Endpoint,
		Model:        lmCfg.Model,
		APIKey:       os.Getenv(lmCfg.APIKeyEnv),
	}
	return adapters.NewRetryingLLM(provider)
}

func buildPersistence(pCfg config.PersistenceConfig) (ports.PersistencePort, error) {
	switch pCfg.Backend {
	case "sqlite":
		return adapters.OpenSQLitePersistence(pCfg.Path)
	default:
		return adapters.NewJSONLPersistence(pCfg.Path), nil
	}
}

func buildMetrics(mCfg config.PersistenceConfig) (ports.MetricsSink, error) {
	return adapters.NewJSONLMetricsSink(mCfg.Path), nil
}

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}
