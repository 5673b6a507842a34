// Demo runner: sends one scripted ticket through the full pipeline against
// a live Agent Builder instance and prints the trace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/a2a"
	"github.com/supportiq/backend/internal/cache/redis"
	"github.com/supportiq/backend/internal/pipeline"
	"github.com/supportiq/backend/internal/storage/models"
	"github.com/supportiq/backend/internal/storage/sqlite"
	"github.com/supportiq/backend/internal/workflows"
	"github.com/supportiq/backend/pkg/config"
	appLogger "github.com/supportiq/backend/pkg/logger"
)

func scenarios() map[string]*models.Ticket {
	now := time.Now()
	return map[string]*models.Ticket{
		// normal auto-resolve flow
		"standard": {
			TicketID:    fmt.Sprintf("TKT-DEMO-%d", now.Unix()),
			Title:       "Cannot login — 2FA SMS not arriving",
			Description: "I've been trying to log in for the past hour and the 2FA SMS code is not being sent to my phone. I've requested the code 5 times and nothing has arrived. I checked my spam folder. This is blocking our entire team from working.",
			CustomerID:  "CUST-10042",
			Category:    "authentication",
			Channel:     "email",
			CreatedAt:   now.UTC(),
		},
		// surge + deployment correlation, triggers the ghost alert
		"surge": {
			TicketID:    fmt.Sprintf("TKT-SURGE-%d", now.Unix()),
			Title:       "Payment checkout completely broken",
			Description: "Since about 2pm today, none of our customers can complete checkout. They get to the payment step, enter their card details, and the spinner just runs forever. No error message. This started right after your maintenance window ended. We are an enterprise customer and this is CRITICAL.",
			CustomerID:  "CUST-10001",
			Category:    "payment",
			Channel:     "slack",
			CreatedAt:   now.UTC(),
		},
		// hard ticket that exercises the critic rejection loop
		"critic": {
			TicketID:    fmt.Sprintf("TKT-CRITIC-%d", now.Unix()),
			Title:       "API returning 401 despite valid v3 API key",
			Description: "We migrated to the v3 API last week as required. Our API key was regenerated for v3. Since yesterday, all our API calls are returning 401 Unauthorized. The key is definitely valid. Our system is processing 50,000 requests/day and we're completely blocked. URGENT.",
			CustomerID:  "CUST-10015",
			Category:    "api",
			Channel:     "api",
			CreatedAt:   now.UTC(),
		},
	}
}

func main() {
	all := scenarios()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	scenario := flag.String("scenario", "standard", "demo scenario: "+strings.Join(names, " | "))
	flag.Parse()

	ticket, ok := all[*scenario]
	if !ok {
		fmt.Printf("Unknown scenario %q (choose from: %s)\n", *scenario, strings.Join(names, ", "))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init("warn", "console", "stdout"); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		fmt.Printf("Failed to initialize schema: %v\n", err)
		os.Exit(1)
	}

	client := a2a.NewClient(cfg.Kibana.URL, cfg.Kibana.APIKey,
		time.Duration(cfg.Pipeline.AgentTimeoutSec)*time.Second)
	dispatcher := workflows.NewDispatcher(cfg.Kibana.URL, cfg.Kibana.APIKey,
		cfg.Slack.WebhookURL, time.Duration(cfg.Pipeline.SideEffectTimeoutSec)*time.Second)

	opts := pipeline.Options{
		Policy: pipeline.Policy{
			AutoResolveThreshold: cfg.Pipeline.AutoResolveThreshold,
			EscalateThreshold:    cfg.Pipeline.EscalateThreshold,
		},
		CriticQualityThreshold: cfg.Pipeline.CriticQualityThreshold,
		MaxSolverAttempts:      cfg.Pipeline.MaxSolverAttempts,
		GhostAlertDedup:        time.Duration(cfg.Pipeline.GhostAlertDedupSec) * time.Second,
	}
	if cfg.Redis.Enabled {
		if cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB); err == nil {
			defer cache.Close()
			opts.Gate = cache
		} else {
			appLogger.Warn("Redis unavailable, ghost alerts will not be deduplicated", zap.Error(err))
		}
	}

	orchestrator := pipeline.NewOrchestrator(client, store, dispatcher, opts)

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("SupportIQ Demo — scenario: %s\n", strings.ToUpper(*scenario))
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Ticket:   %s\n", ticket.Title)
	fmt.Printf("Category: %s | Customer: %s\n", ticket.Category, ticket.CustomerID)
	fmt.Println("\nPinging providers...")

	ctx := context.Background()
	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	statuses := client.PingAll(pingCtx)
	cancel()
	for _, provider := range a2a.Providers() {
		fmt.Printf("  %-8s %s\n", provider, statuses[provider].Status)
	}

	fmt.Println("\nStarting pipeline...")
	if err := store.InsertTicket(ctx, ticket); err != nil {
		fmt.Printf("Failed to persist ticket: %v\n", err)
		os.Exit(1)
	}

	trace := orchestrator.Run(ctx, ticket)
	printTrace(trace)
}

func printTrace(trace *models.PipelineTrace) {
	line := strings.Repeat("-", 60)

	fmt.Println("\n" + line)
	fmt.Printf("PIPELINE TRACE: %s\n", trace.TicketID)
	fmt.Println(line)

	for _, step := range trace.Steps {
		switch step.Agent {
		case "watcher":
			fmt.Printf("  [%s] watcher: %d similar tickets, tier=%s, known_solution=%v\n",
				step.Step, step.SimilarCount, step.CustomerTier, step.HasKnownSolution)
		case "judge":
			surge := ""
			if step.SurgeDetected {
				surge = " SURGE"
			}
			fmt.Printf("  [%s] judge: priority=%s (%.0f)%s\n",
				step.Step, step.PriorityLabel, step.PriorityScore, surge)
		case "solver+critic":
			fmt.Printf("  [%s] solver->critic attempt %d: confidence=%.0f%%, quality=%.0f%% %s\n",
				step.Step, step.Attempt, step.SolverConfidence*100, step.CriticQuality*100, step.CriticDecision)
		case "pipeline":
			fmt.Printf("  [%s] decision: %s (confidence=%.0f%%)\n",
				step.Step, strings.ToUpper(string(step.Decision)), step.Confidence*100)
		}
	}

	fmt.Println(line)
	fmt.Printf("FINAL DECISION: %s\n", strings.ToUpper(string(trace.FinalDecision)))
	fmt.Printf("TOTAL TIME:     %dms\n", trace.TotalDurationMS)
	if trace.Error != "" {
		fmt.Printf("ERROR:          %s\n", trace.Error)
	}
	if trace.FinalResolution != "" {
		preview := trace.FinalResolution
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		fmt.Printf("\nRESOLUTION PREVIEW:\n  %s\n", preview)
	}
	fmt.Println(line)
}
