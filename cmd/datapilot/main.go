// Command datapilot runs an LLM planning agent against a data workspace:
// the model writes a step-by-step plan, executes Python in a sandboxed
// container round by round, and finishes with an answer plus a clean,
// runnable notebook of everything that worked.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/datapilot/internal/config"
	"github.com/ChamsBouzaiene/datapilot/internal/engine"
	"github.com/ChamsBouzaiene/datapilot/internal/executor"
	"github.com/ChamsBouzaiene/datapilot/internal/gateway"
	"github.com/ChamsBouzaiene/datapilot/internal/notebook"
	"github.com/ChamsBouzaiene/datapilot/internal/prompts"
	"github.com/ChamsBouzaiene/datapilot/internal/providers"
	"github.com/ChamsBouzaiene/datapilot/internal/server"
	"github.com/ChamsBouzaiene/datapilot/internal/session"
	"github.com/ChamsBouzaiene/datapilot/internal/workspace"
)

func main() {
	var (
		task      = flag.String("task", "", "task to run")
		ws        = flag.String("workspace", "./workspace", "workspace directory with the data files")
		model     = flag.String("model", "", "model name (defaults from env/config)")
		maxRounds = flag.Int("max-rounds", 0, "maximum agent rounds")
		serve     = flag.Bool("serve", false, "start the websocket server instead of running one task")
		addr      = flag.String("addr", ":8080", "listen address for -serve")
		resume    = flag.String("resume", "", "session id to resume")
		verbose   = flag.Bool("verbose", false, "print every lifecycle event")
	)
	flag.Parse()

	// .env is optional; flags and real env still win.
	_ = godotenv.Load()

	mgr, err := config.NewManager()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	fileCfg, err := mgr.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	provCfg, modelName := resolveProvider(fileCfg, *model)

	engCfg := engine.DefaultConfig()
	engCfg.Model = modelName
	engCfg.Workspace = *ws
	if *maxRounds > 0 {
		engCfg.MaxRounds = *maxRounds
	} else if fileCfg.MaxRounds > 0 {
		engCfg.MaxRounds = fileCfg.MaxRounds
	}

	execCfg := executor.DefaultConfig(*ws)
	if fileCfg.DockerImage != "" {
		execCfg.Image = fileCfg.DockerImage
	}

	if *serve {
		runServe(*addr, engCfg, execCfg, provCfg)
		return
	}

	if *task == "" {
		fmt.Fprintln(os.Stderr, "usage: datapilot -task \"...\" [-workspace DIR] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := runTask(mgr, engCfg, execCfg, provCfg, *task, *resume, *verbose); err != nil {
		log.Fatalf("datapilot: %v", err)
	}
}

// resolveProvider merges env and config-file settings into a provider
// selection. Precedence: flags > environment > config file.
func resolveProvider(fileCfg *config.Config, modelFlag string) (providers.Config, string) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = fileCfg.LLMProvider
	}
	if provider == "" {
		provider = "openai"
	}

	var apiKey, baseURL, model string
	switch provider {
	case "anthropic":
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		model = os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
	default:
		apiKey = os.Getenv("OPENAI_API_KEY")
		baseURL = os.Getenv("OPENAI_BASE_URL")
		model = os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o"
		}
	}
	if apiKey == "" {
		apiKey = fileCfg.APIKey
	}
	if baseURL == "" {
		baseURL = fileCfg.BaseURL
	}
	if fileCfg.Model != "" && os.Getenv("OPENAI_MODEL") == "" && os.Getenv("ANTHROPIC_MODEL") == "" {
		model = fileCfg.Model
	}
	if modelFlag != "" {
		model = modelFlag
	}

	return providers.Config{Provider: provider, APIKey: apiKey, BaseURL: baseURL}, model
}

func buildEngine(engCfg engine.Config, execCfg executor.Config, provCfg providers.Config, task string) (*engine.Engine, *notebook.Builder, *executor.DockerExecutor, error) {
	completer, err := providers.NewCompleter(provCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	gw := gateway.New(completer, gateway.Config{
		Model:       engCfg.Model,
		Temperature: engCfg.Temperature,
		MaxTokens:   engCfg.MaxTokens,
	})

	exec, err := executor.NewDockerExecutor(execCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("executor: %w", err)
	}

	files, err := workspace.ListDataFiles(engCfg.Workspace)
	if err != nil {
		log.Printf("WARNING: workspace scan failed: %v", err)
	}

	builder := notebook.NewBuilder(task, engCfg.Workspace)
	eng := engine.New(engCfg, gw, exec, builder, prompts.Planner(files))
	return eng, builder, exec, nil
}

func runTask(mgr *config.Manager, engCfg engine.Config, execCfg executor.Config, provCfg providers.Config, task, resume string, verbose bool) error {
	store, err := session.OpenStore(mgr.SessionDBPath())
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer store.Close()

	sessionID := session.NewSessionID()
	var restored *session.SessionState
	if resume != "" {
		st, err := store.Load(resume)
		if err != nil {
			return fmt.Errorf("resume %s: %w", resume, err)
		}
		sessionID = st.SessionID
		engCfg = st.Config
		restored = &st
	}
	engCfg.SessionID = sessionID

	eng, builder, exec, err := buildEngine(engCfg, execCfg, provCfg, task)
	if err != nil {
		return err
	}
	defer exec.Close()

	if restored != nil {
		session.Restore(eng, *restored)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("session %s\n", sessionID)
	for ev := range eng.RunStream(ctx, task) {
		printEvent(ev, verbose)
	}

	if err := store.Save(session.Snapshot(sessionID, eng)); err != nil {
		log.Printf("WARNING: failed to save session: %v", err)
	}

	clean := builder.GenerateClean(eng.Plan(), eng.Answer())
	if path, err := clean.Save(""); err != nil {
		log.Printf("WARNING: failed to save notebook: %v", err)
	} else {
		fmt.Printf("\nnotebook: %s\n", path)
	}

	fmt.Printf("\n%s\n", eng.Answer())
	return nil
}

func printEvent(ev engine.Event, verbose bool) {
	switch ev.Type {
	case engine.EventRoundStarted:
		fmt.Printf("\n--- %s ---\n", ev.Message)
	case engine.EventPlanUpdated:
		if ev.Plan != nil {
			fmt.Printf("plan (%s):\n%s\n", ev.Plan.Progress(), ev.Plan.Format())
		}
	case engine.EventCodeExecuting:
		fmt.Printf("executing: %s\n", ev.Message)
	case engine.EventCodeSuccess:
		fmt.Printf("ok: %s\n", ev.Message)
	case engine.EventCodeFailed:
		fmt.Printf("failed: %s\n", ev.Message)
	case engine.EventAnswerAccepted:
		fmt.Println("answer accepted")
	case engine.EventAgentError:
		fmt.Printf("error: %s\n", ev.Message)
	default:
		if verbose {
			fmt.Printf("[%s] %s\n", ev.Type, ev.Message)
		}
	}
}

func runServe(addr string, engCfg engine.Config, execCfg executor.Config, provCfg providers.Config) {
	factory := func(sessionID string) (*engine.Engine, error) {
		cfg := engCfg
		cfg.SessionID = sessionID
		eng, _, _, err := buildEngine(cfg, execCfg, provCfg, "websocket session")
		return eng, err
	}
	if err := server.New(factory).ListenAndServe(addr); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
