package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/joeycumines/simscript/internal/bridge"
	"github.com/joeycumines/simscript/internal/config"
	"github.com/joeycumines/simscript/internal/event"
	"github.com/joeycumines/simscript/internal/world"
)

const version = "0.1.0"

// defaultScript is committed at startup when no script file is given, so the
// TUI shows live behavior immediately.
const defaultScript = `function init() {
	return {
		subscriptions: ["ui.update"],
		queries: {
			movers: {
				kinds: ["transform", "velocity"],
				filter: "velocity.linear.x >= 0",
			},
		},
	};
}

function update() {
	state.ticks = (state.ticks || 0) + 1;
	for (var key in movers) {
		var t = movers[key].transform;
		t.position.y = Math.sin(state.ticks / 30 + Number(key)) * 2;
	}
}
`

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "config file path (default: user config dir)")
		scriptPath  = flag.String("script", "", "script file to load and commit at startup")
		tickRate    = flag.Int("tick-rate", 0, "simulation ticks per second (overrides config)")
		budget      = flag.Duration("budget", -1, "per-evaluation script budget (overrides config; 0 disables)")
		logPath     = flag.String("log", "", "write logs to this file (default: discard)")
		headless    = flag.Int("ticks", 0, "run N ticks without the TUI, print the response, and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("simscript " + version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *tickRate > 0 {
		cfg.TickRate = *tickRate
	}
	if *budget >= 0 {
		cfg.ScriptBudget = *budget
	}
	if *scriptPath != "" {
		cfg.ScriptPath = *scriptPath
	}

	logger, closeLog, err := newLogger(cfg.LogLevel, *logPath)
	if err != nil {
		return err
	}
	defer closeLog()
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	source := defaultScript
	if cfg.ScriptPath != "" {
		raw, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return fmt.Errorf("failed to read script %s: %w", cfg.ScriptPath, err)
		}
		source = string(raw)
	}

	bus := event.NewBus()
	w := seedWorld(logger)

	inst := bridge.NewInstance(bridge.Options{
		Logger: logger,
		Bus:    bus,
		Budget: cfg.ScriptBudget,
		Source: source,
	})
	defer inst.Close()

	// Build the world's query registration from the declared capability
	// set. This wiring is fixed for the instance's lifetime.
	for name, spec := range inst.Capabilities().Queries {
		q, err := world.NewQuery(name, spec.Kinds, spec.Filter)
		if err != nil {
			return fmt.Errorf("failed to register query %q: %w", name, err)
		}
		w.RegisterQuery(q)
	}

	interval := time.Second / time.Duration(cfg.TickRate)

	if *headless > 0 {
		return runHeadless(w, inst, interval, *headless)
	}

	model := newModel(w, inst, bus, interval, logger)
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func newLogger(level, path string) (zerolog.Logger, func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var out io.Writer = io.Discard
	closeLog := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeLog = func() { _ = f.Close() }
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), closeLog, nil
}

// seedWorld populates a demo world with a handful of moving entities.
func seedWorld(logger zerolog.Logger) *world.World {
	w := world.New(logger)
	for i := 0; i < 5; i++ {
		t := world.Transform{
			Position:    world.Vec3{X: float64(i) * 2},
			Orientation: world.Identity(),
		}
		v := world.Velocity{Linear: world.Vec3{X: 0.5}}
		h := world.Health{Current: 100, Max: 100}
		w.Spawn(world.Record{Transform: &t, Velocity: &v, Health: &h})
	}
	return w
}

func runHeadless(w *world.World, inst *bridge.Instance, interval time.Duration, ticks int) error {
	dt := interval.Seconds()
	var resp string
	for i := 0; i < ticks; i++ {
		w.Capture()
		w.Advance(dt)
		resp = inst.Tick(w)
	}
	fmt.Println(resp)
	return nil
}
