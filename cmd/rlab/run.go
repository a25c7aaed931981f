package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/rlab/internal/server"
	"github.com/boristopalov/rlab/internal/store"
	"github.com/boristopalov/rlab/pkg/agent"
	"github.com/boristopalov/rlab/pkg/config"
	"github.com/boristopalov/rlab/pkg/core"
	"github.com/boristopalov/rlab/pkg/environment"
	"github.com/boristopalov/rlab/pkg/experiment"
	"github.com/boristopalov/rlab/pkg/messaging"
	"github.com/boristopalov/rlab/pkg/mode"
	"github.com/boristopalov/rlab/pkg/net"
	"github.com/boristopalov/rlab/pkg/providers"
)

type runOptions struct {
	spec     string
	mode     string
	steps    int
	db       string
	serve    string
	ckpt     string
	provider string
	seed     int64
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a lab session from a spec file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), runFlags)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.spec, "spec", "", "lab spec file (YAML)")
	runCmd.Flags().StringVar(&runFlags.mode, "mode", "", "lab mode: dev, train, search, enjoy or eval (default $LAB_MODE, then config)")
	runCmd.Flags().IntVar(&runFlags.steps, "steps", 0, "step budget (default meta.max_steps)")
	runCmd.Flags().StringVar(&runFlags.db, "db", "", "checkpoint database (default $RLAB_DB, then config)")
	runCmd.Flags().StringVar(&runFlags.serve, "serve", "", "serve the status API on this address")
	runCmd.Flags().StringVar(&runFlags.ckpt, "ckpt", "", "checkpoint tag for the final save (default meta.ckpt)")
	runCmd.Flags().StringVar(&runFlags.provider, "provider", "", "LLM provider for LLMPolicy: openai or gemini")
	runCmd.Flags().Int64Var(&runFlags.seed, "seed", 0, "seed for body memories")
	runCmd.MarkFlagRequired("spec")
}

func loadLabConfig() (*config.LabConfig, error) {
	if configPath == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.LoadConfig(configPath)
}

// lab is everything a session needs, wired together.
type lab struct {
	cfg      *config.LabConfig
	spec     *config.LabSpec
	db       *store.DB
	agent    *agent.Agent
	session  *experiment.Session
	broker   *messaging.SimpleBroker
	recorder *messaging.Recorder
	logger   *log.Logger
	closers  []io.Closer
}

func (l *lab) Close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i].Close()
	}
	l.broker.Reset()
}

func resolveMode(flag, cfgMode string) (mode.Query, error) {
	switch {
	case flag != "":
		if !mode.Valid(flag) {
			return nil, fmt.Errorf("unknown lab mode %q", flag)
		}
		return mode.Static(flag), nil
	case os.Getenv(mode.EnvVar) != "":
		if m := os.Getenv(mode.EnvVar); !mode.Valid(m) {
			return nil, fmt.Errorf("unknown lab mode %s=%q", mode.EnvVar, m)
		}
		return mode.FromEnv(), nil
	default:
		if !mode.Valid(cfgMode) {
			return nil, fmt.Errorf("unknown lab mode %q in config", cfgMode)
		}
		return mode.Static(cfgMode), nil
	}
}

func newLogger(cfg *config.LabConfig) (*log.Logger, io.Closer, error) {
	if cfg.Logging.Path == "" {
		return log.New(os.Stderr, cfg.Logging.Prefix, log.LstdFlags), nil, nil
	}
	f, err := os.OpenFile(cfg.Logging.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, cfg.Logging.Prefix, log.LstdFlags), f, nil
}

func setupLab(ctx context.Context, opts runOptions) (*lab, error) {
	cfg, err := loadLabConfig()
	if err != nil {
		return nil, err
	}
	switch {
	case opts.db != "":
		cfg.Checkpoint.DB = opts.db
	case os.Getenv("RLAB_DB") != "":
		cfg.Checkpoint.DB = os.Getenv("RLAB_DB")
	}

	l := &lab{cfg: cfg, broker: messaging.NewBroker()}
	ok := false
	defer func() {
		if !ok {
			l.Close()
		}
	}()

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		l.closers = append(l.closers, closer)
	}
	l.logger = logger

	labMode, err := resolveMode(opts.mode, cfg.Mode)
	if err != nil {
		return nil, err
	}
	if l.spec, err = config.LoadSpec(opts.spec); err != nil {
		return nil, err
	}

	envs := make([]core.Environment, 0, len(l.spec.Env))
	for i, es := range l.spec.Env {
		env, err := environment.NewFromSpec(i, es)
		if err != nil {
			return nil, fmt.Errorf("env[%d]: %w", i, err)
		}
		envs = append(envs, env)
	}

	if l.db, err = store.Open(cfg.Checkpoint.DB); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	l.closers = append(l.closers, l.db)

	agentOpts := []agent.AgentOption{
		agent.WithMode(labMode),
		agent.WithLogger(logger),
		agent.WithBuilder(net.NewSQLiteBuilder(l.db)),
	}
	algName, _ := config.String(l.spec.Agent.Algorithm, "name")
	if algName == "LLMPolicy" {
		provider := opts.provider
		if provider == "" {
			if provider, err = config.StringOr(l.spec.Agent.Algorithm, "provider", "openai"); err != nil {
				return nil, err
			}
		}
		completer, err := providers.New(ctx, provider)
		if err != nil {
			return nil, err
		}
		agentOpts = append(agentOpts, agent.WithCompleter(completer))
	}

	bodies, err := agent.NewBodies(envs, &l.spec.Agent, cfg.Device, opts.seed)
	if err != nil {
		return nil, err
	}
	if l.agent, err = agent.New(&l.spec.Agent, bodies, agentOpts...); err != nil {
		return nil, err
	}
	if err := l.agent.Init(ctx); err != nil {
		return nil, err
	}

	steps := opts.steps
	if steps == 0 {
		steps = l.spec.Meta.MaxSteps
	}
	if steps == 0 {
		steps = 100
	}
	ckpt := opts.ckpt
	if ckpt == "" {
		ckpt = l.spec.Meta.Ckpt
	}
	if ckpt == "" {
		ckpt = cfg.Checkpoint.Tag
	}

	l.recorder = messaging.NewRecorder("status-server", 200)
	if err := l.recorder.Attach(l.broker); err != nil {
		return nil, err
	}
	l.session, err = experiment.NewSession(l.agent, envs,
		experiment.WithMaxSteps(steps),
		experiment.WithCheckpoint(ckpt),
		experiment.WithBroker(l.broker),
		experiment.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	ok = true
	return l, nil
}

func runSession(ctx context.Context, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := setupLab(ctx, opts)
	if err != nil {
		return err
	}
	defer l.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			l.logger.Printf("rlab: interrupt, stopping after the current step")
			l.session.Stop()
		case <-ctx.Done():
		}
	}()

	go l.recorder.Run(ctx)

	addr := opts.serve
	if addr == "" && l.cfg.Server.Enabled {
		addr = l.cfg.ListenAddr()
	}
	if addr != "" {
		srv := &http.Server{
			Addr:    addr,
			Handler: server.New(l.db, l.agent, l.session, l.recorder, versionString()),
		}
		go func() {
			l.logger.Printf("rlab: status api on http://%s/api/session", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.logger.Printf("rlab: server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := l.session.Run(ctx); err != nil {
		return err
	}
	st := l.session.GetStatus()
	l.logger.Printf("rlab: session %s finished: %d steps, %d episodes in %s",
		l.session.ID(), st.Step, st.Episode, st.EndTime.Sub(st.StartTime).Round(time.Millisecond))
	return nil
}
