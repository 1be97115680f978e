// Command arena runs a headless game of rule bots to completion and prints
// the outcome. Without a config file it runs in lockstep mode, where a
// fixed seed replays the same game. Useful for balance tuning and seed
// sweeps.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/minhqd/among-arena/internal/config"
	"github.com/minhqd/among-arena/internal/diag"
	"github.com/minhqd/among-arena/internal/game"
	"github.com/minhqd/among-arena/internal/provider"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		agents     = flag.Int("agents", 6, "roster size when no config file is given")
		seed       = flag.Int64("seed", 0, "game seed; 0 picks one")
		timeout    = flag.Duration("timeout", 5*time.Minute, "give up after this long")
		verbose    = flag.Bool("v", false, "log engine activity")
	)
	flag.Parse()

	cfg, err := buildConfig(*configPath, *agents, *seed)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	bot, err := provider.NewRuleBot("rulebot", provider.DefaultRules(), cfg.Seed)
	if err != nil {
		log.Fatalf("rulebot: %v", err)
	}
	registry := provider.NewRegistry()
	if err := registry.Register("rulebot", bot); err != nil {
		log.Fatalf("registry: %v", err)
	}

	logWriter := io.Discard
	if *verbose {
		logWriter = os.Stderr
	}
	logger := log.New(logWriter, "[arena] ", log.LstdFlags)

	engine, err := game.New("headless", cfg, registry, diag.Nop{}, logger)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	if err := engine.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	go func() {
		select {
		case <-engine.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	engine.Run(ctx)

	res, ok := engine.Result()
	if !ok {
		log.Fatalf("game did not finish within %v", *timeout)
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
}

// buildConfig loads the file when given, otherwise assembles a rule-bot
// roster of the requested size with timers suited to a headless sprint.
func buildConfig(path string, agents int, seed int64) (config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		if seed != 0 {
			cfg.Seed = seed
		}
		return cfg, nil
	}

	cfg := config.Defaults()
	cfg.Seed = seed
	cfg.Lockstep = true
	cfg.DecisionInterval = config.Duration(50 * time.Millisecond)
	cfg.ProviderTimeout = config.Duration(100 * time.Millisecond)
	cfg.DiscussionFor = config.Duration(2 * time.Second)
	cfg.VotingFor = config.Duration(2 * time.Second)
	cfg.KillCooldown = config.Duration(500 * time.Millisecond)
	cfg.Roster = make([]config.AgentSpec, agents)
	for i := range cfg.Roster {
		cfg.Roster[i] = config.AgentSpec{Provider: "rulebot"}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
