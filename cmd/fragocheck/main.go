// Command fragocheck is a development-only smoke test: it wires up every
// frago component (run store, env loader, recipe registry, tab manager, CDP
// session) against a throwaway temp directory and, optionally, a real
// Chrome instance if one is reachable on the configured debugging port.
// It is not the CLI surface — that remains out of scope for this module —
// just a quick way to see the pieces fit together end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"frago/internal/cdp"
	"frago/internal/config"
	"frago/internal/discovery"
	"frago/internal/env"
	"frago/internal/recipe"
	"frago/internal/runstore"
	"frago/internal/tabs"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Chrome debugging host")
	port := flag.Int("port", 9222, "Chrome debugging port")
	flag.Parse()

	root, err := os.MkdirTemp("", "fragocheck-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkdir temp:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(root)

	if err := checkRunStore(root); err != nil {
		fmt.Fprintln(os.Stderr, "run store check failed:", err)
		os.Exit(1)
	}
	if err := checkEnvAndRecipes(root); err != nil {
		fmt.Fprintln(os.Stderr, "env/recipe check failed:", err)
		os.Exit(1)
	}
	checkCDP(*host, *port)

	fmt.Println("fragocheck: all offline checks passed")
}

func checkRunStore(root string) error {
	projectsDir := filepath.Join(root, "projects")
	manager, err := runstore.NewManager(projectsDir)
	if err != nil {
		return fmt.Errorf("NewManager: %w", err)
	}

	run, err := manager.CreateRun("smoke test run", "")
	if err != nil {
		return fmt.Errorf("CreateRun: %w", err)
	}
	fmt.Printf("created run %s\n", run.RunID)

	ctxMgr := runstore.NewContextManager(root, projectsDir)
	if _, err := ctxMgr.SetCurrentRun(run.RunID, run.ThemeDescription); err != nil {
		return fmt.Errorf("SetCurrentRun: %w", err)
	}
	if _, err := ctxMgr.GetCurrentRun(); err != nil {
		return fmt.Errorf("GetCurrentRun: %w", err)
	}

	runDir := filepath.Join(projectsDir, run.RunID)
	logger := runstore.NewRunLogger(runDir)
	if _, err := logger.WriteLog("smoke step", runstore.LogSuccess, runstore.ActionOther, runstore.ExecutionCommand,
		map[string]interface{}{"ok": true}); err != nil {
		return fmt.Errorf("WriteLog: %w", err)
	}

	shots := runstore.NewScreenshotPipeline(runDir)
	seq, err := shots.NextSequenceNumber()
	if err != nil {
		return fmt.Errorf("NextSequenceNumber: %w", err)
	}
	fmt.Printf("next screenshot sequence: %d\n", seq)

	finder := discovery.NewFinder(manager)
	matches, err := finder.DiscoverSimilarRuns("smoke test", 0, 0)
	if err != nil {
		return fmt.Errorf("DiscoverSimilarRuns: %w", err)
	}
	fmt.Printf("discovery found %d similar run(s)\n", len(matches))

	ctxMgr.ReleaseContext()
	return nil
}

func checkEnvAndRecipes(root string) error {
	loader := env.NewLoader(root)
	resolved, err := loader.ResolveForRecipe(map[string]env.VarDefinition{
		"FRAGO_SMOKE_TEST": {Required: false, Default: strPtr("1")},
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("ResolveForRecipe: %w", err)
	}
	fmt.Printf("resolved %d env var(s)\n", len(resolved))

	registry := recipe.NewRegistry()
	registry.Scan()
	fmt.Printf("registry holds %d recipe(s)\n", len(registry.ListAll(false)))

	return nil
}

func strPtr(s string) *string { return &s }

// checkCDP tries to reach a live Chrome instance; it only reports status,
// since no browser is expected to be running in CI or a plain dev shell.
func checkCDP(host string, port int) {
	cfg := config.Default()
	cfg.Host = host
	cfg.Port = port

	session := cdp.NewSession(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		fmt.Printf("no Chrome reachable at %s:%d (%v) — skipping live CDP checks\n", host, port, err)
		return
	}
	defer session.Disconnect()

	tabMgr := tabs.NewManager(host, port, filepath.Join(os.TempDir(), "fragocheck-tabs.json"))
	targetID, err := tabMgr.GetOrCreateTab(ctx, session, "https://example.org")
	if err != nil {
		fmt.Println("tab routing failed:", err)
		return
	}
	fmt.Println("routed to tab", targetID)

	if ok := session.HealthCheck(ctx); ok {
		fmt.Println("CDP health check ok")
	}
}
