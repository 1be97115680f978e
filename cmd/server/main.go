package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/minhqd/among-arena/internal/api"
	"github.com/minhqd/among-arena/internal/diag"
	"github.com/minhqd/among-arena/internal/provider"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "arena.db"
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	logger := log.New(os.Stderr, "[server] ", log.LstdFlags)

	store, err := diag.NewStore(dbPath, logger)
	if err != nil {
		log.Fatalf("Failed to open diagnostics store: %v", err)
	}
	defer store.Close()

	registry, err := buildRegistry()
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}

	server := api.NewServer(registry, store, []byte(secret), logger)
	defer server.Close()

	addr := fmt.Sprintf(":%s", port)
	logger.Printf("listening on %s, providers: %v", addr, registry.IDs())

	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// buildRegistry registers the rule bot and, when an OpenRouter key is
// present, one LLM provider per configured model.
func buildRegistry() (*provider.Registry, error) {
	registry := provider.NewRegistry()

	bot, err := provider.NewRuleBot("rulebot", provider.DefaultRules(), 1)
	if err != nil {
		return nil, fmt.Errorf("rulebot: %w", err)
	}
	if err := registry.Register("rulebot", bot); err != nil {
		return nil, err
	}

	if os.Getenv("OPENROUTER_API_KEY") == "" {
		return registry, nil
	}
	model := os.Getenv("OPENROUTER_MODEL")
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	client := provider.NewOpenRouterClient()
	llm := provider.NewLLMProvider("openrouter", model, client)
	if err := registry.Register("openrouter", llm); err != nil {
		return nil, err
	}
	return registry, nil
}
