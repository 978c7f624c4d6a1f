package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/agent"
	"github.com/nidhogg/mediaforge/internal/bus"
	"github.com/nidhogg/mediaforge/internal/engine"
	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/provider"
	pgstore "github.com/nidhogg/mediaforge/internal/store"
	"github.com/nidhogg/mediaforge/internal/template"
)

// Package-level shared state set by TestMain and used by all subtests.
var (
	testLogger    *zap.Logger
	testStore     *pgstore.Store
	testRedisURL  string
	testLLMConfig *llmTestConfig
)

type llmTestConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("mediaforge_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// skipIfNoLLM skips tests that need a real provider.
func skipIfNoLLM(t *testing.T) {
	t.Helper()
	if testLLMConfig == nil {
		t.Skip("LLM provider not configured (set MF_TEST_PROVIDER_ENDPOINT, MF_TEST_PROVIDER_API_KEY, MF_TEST_PROVIDER_MODEL)")
	}
}

// setupEngine builds an engine over the shared Postgres store with
// deterministic placeholder agents, so the pipeline runs offline.
func setupEngine(t *testing.T, events engine.Events) *engine.Engine {
	t.Helper()

	loader := template.NewLoader("../../templates", testLogger)
	if _, err := loader.LoadAll(); err != nil {
		t.Fatalf("load templates: %v", err)
	}
	if len(loader.Names()) == 0 {
		t.Fatal("no templates found under ../../templates")
	}

	catalog := agent.NewCatalog(testLogger)
	for _, cat := range job.Categories() {
		p := agent.NewPlaceholder(cat, testLogger)
		catalog.Register(p)
		catalog.SetFallback(cat, p.InstanceKey())
	}

	// When a real provider is configured, layer the model-backed agents
	// on top; placeholders stay as fallbacks.
	if testLLMConfig != nil {
		p := provider.NewOpenAIProvider(provider.Config{
			ID:       "test-llm",
			Type:     "openai",
			Name:     "Test LLM",
			Endpoint: testLLMConfig.Endpoint,
			APIKey:   testLLMConfig.APIKey,
		}, testLogger)
		gen := agent.GenerationConfig{Model: testLLMConfig.Model}
		catalog.Register(agent.NewResearchAgent(p, gen, testLogger))
		catalog.Register(agent.NewWritingAgent(p, gen, testLogger))
		catalog.Register(agent.NewDesignAgent(p, gen, testLogger))
		catalog.Register(agent.NewAudioAgent(p, gen, testLogger))
		catalog.Register(agent.NewVideoAgent(p, gen, testLogger))
	}

	selector := agent.NewSelector(catalog, testLogger)
	runner := engine.NewRunner(testStore, selector, events, testLogger)
	return engine.New(testStore, loader, catalog, runner, nil, events, testLogger)
}

// openBus connects to the shared Redis container.
func openBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	return b
}

func envLLMConfig() *llmTestConfig {
	endpoint := os.Getenv("MF_TEST_PROVIDER_ENDPOINT")
	apiKey := os.Getenv("MF_TEST_PROVIDER_API_KEY")
	model := os.Getenv("MF_TEST_PROVIDER_MODEL")
	if endpoint == "" || apiKey == "" || model == "" {
		return nil
	}
	return &llmTestConfig{Endpoint: endpoint, APIKey: apiKey, Model: model}
}
