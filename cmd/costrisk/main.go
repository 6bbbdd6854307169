// costrisk CLI - probabilistic cost risk analysis for infrastructure changes
//
// Usage:
//
//	costrisk analyze --plan plan.json --estimates estimates.json [options]
//	costrisk simulate --inputs inputs.json --runs 10000
//	costrisk seasonality --history costs.csv
//	costrisk ingest --file costs.csv --history-backend clickhouse
//	costrisk serve --port 8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"costrisk/api"
	"costrisk/db/clickhouse"
	"costrisk/db/ingestion"
	"costrisk/db/postgres"
	"costrisk/decision/cost"
	"costrisk/decision/estimation"
	"costrisk/decision/iac"
	"costrisk/decision/montecarlo"
	"costrisk/decision/policy"
	"costrisk/decision/probabilistic"
	"costrisk/decision/regression"
	"costrisk/decision/seasonality"
	"costrisk/pkg/platform"
	"costrisk/pkg/units"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitDenied is the exit code when policy evaluation denies a change.
const exitDenied = 2

func main() {
	app := &cli.App{
		Name:    "costrisk",
		Usage:   "Probabilistic cost estimation and regression severity for infrastructure changes",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"COSTRISK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (text, json)",
				EnvVars: []string{"COSTRISK_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "history-backend",
				Value:   "none",
				Usage:   "Cost history store (none, clickhouse, postgres)",
				EnvVars: []string{"COSTRISK_HISTORY_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "costrisk",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "postgres-dsn",
				Value:   postgres.DefaultConfig().DSN,
				Usage:   "PostgreSQL connection string",
				EnvVars: []string{"POSTGRES_DSN", "DATABASE_URL"},
			},
		},

		Before: func(c *cli.Context) error {
			platform.InitLogger(c.String("log-level"), c.String("log-format"))
			return nil
		},

		Commands: []*cli.Command{
			analyzeCommand(),
			detectCommand(),
			predictCommand(),
			simulateCommand(),
			seasonalityCommand(),
			ingestCommand(),
			migrateCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// HISTORY STORE
// =============================================================================

// historyStore is what both backends provide to the CLI.
type historyStore interface {
	api.HistoryStore
	ingestion.Writer
	Migrate(ctx context.Context) error
	Close() error
}

// openStore returns nil when no backend is configured.
func openStore(c *cli.Context) (historyStore, error) {
	switch backend := strings.ToLower(c.String("history-backend")); backend {
	case "", "none":
		return nil, nil
	case "clickhouse":
		store, err := clickhouse.NewStore(&clickhouse.Config{
			Host:     c.String("clickhouse-host"),
			Port:     c.Int("clickhouse-port"),
			Database: c.String("clickhouse-database"),
			Username: c.String("clickhouse-user"),
			Password: c.String("clickhouse-password"),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres", "postgresql":
		cfg := postgres.DefaultConfig()
		cfg.DSN = c.String("postgres-dsn")
		store, err := postgres.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q (want none, clickhouse or postgres)", backend)
	}
}

func requireStore(c *cli.Context) (historyStore, error) {
	store, err := openStore(c)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("this command needs --history-backend clickhouse or postgres")
	}
	return store, nil
}

// =============================================================================
// INPUT LOADING
// =============================================================================

// loadEstimates reads a JSON array of cost estimates keyed by resource_id.
func loadEstimates(path string) (map[string]*cost.Estimate, error) {
	out := make(map[string]*cost.Estimate)
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read estimates: %w", err)
	}
	var list []cost.Estimate
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode estimates: %w", err)
	}
	for i := range list {
		if list[i].ResourceID == "" {
			return nil, fmt.Errorf("estimate %d has no resource_id", i)
		}
		out[list[i].ResourceID] = &list[i]
	}
	return out, nil
}

// loadHistory reads a cost CSV whose costs cover period and returns one
// daily series per resource.
func loadHistory(path string, period units.Period) (map[string][]seasonality.CostPoint, error) {
	out := make(map[string][]seasonality.CostPoint)
	if path == "" {
		return out, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer f.Close()

	obs, err := ingestion.ParseCSV(f, path)
	if err != nil {
		return nil, err
	}
	ingestion.ToDailyCosts(obs, period)
	for id, group := range ingestion.GroupByResource(obs) {
		out[id] = ingestion.ToSeries(group)
	}
	return out, nil
}

func periodFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "period",
		Value: string(units.PeriodDaily),
		Usage: "Billing period of the CSV cost column (hourly, daily, monthly)",
	}
}

func buildInputs(changes []iac.ResourceChange, estimates map[string]*cost.Estimate, history map[string][]seasonality.CostPoint) []estimation.ResourceInput {
	inputs := make([]estimation.ResourceInput, 0, len(changes))
	for _, change := range changes {
		if change.Action == iac.ActionNoOp {
			continue
		}
		inputs = append(inputs, estimation.ResourceInput{
			Change:   change,
			Estimate: estimates[change.ID],
			History:  history[change.ID],
		})
	}
	return inputs
}

// =============================================================================
// ANALYZE COMMAND
// =============================================================================

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Score, predict and simulate the cost risk of a Terraform plan",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Aliases:  []string{"p"},
				Usage:    "Path to terraform plan JSON (from terraform show -json)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "estimates",
				Usage: "Path to a JSON array of per-resource cost estimates",
			},
			&cli.StringFlag{
				Name:  "history",
				Usage: "Path to a cost history CSV (resource_id,timestamp,cost); overrides the history backend",
			},
			periodFlag(),
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Value:   "dev",
				Usage:   "Environment (dev, staging, prod)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json, markdown)",
			},
			&cli.BoolFlag{
				Name:  "simulate",
				Value: true,
				Usage: "Run a Monte Carlo simulation over the estimated resources",
			},
			&cli.IntFlag{
				Name:  "runs",
				Value: montecarlo.DefaultConfig().RunCount,
				Usage: "Monte Carlo trials",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Value: montecarlo.DefaultConfig().Seed,
				Usage: "Monte Carlo seed",
			},
			&cli.IntFlag{
				Name:  "workers",
				Value: 1,
				Usage: "Parallel simulation workers (results are identical for any value)",
			},
			&cli.Float64Flag{
				Name:  "cost-limit",
				Usage: "Monthly cost limit for policy check",
			},
			&cli.Float64Flag{
				Name:  "budget",
				Usage: "Monthly budget; fails when the breach probability exceeds --max-breach",
			},
			&cli.Float64Flag{
				Name:  "max-breach",
				Value: 10,
				Usage: "Maximum acceptable budget breach probability (percent)",
			},
			&cli.StringFlag{
				Name:  "policy-file",
				Usage: "Path to a JSON array of additional policies",
			},
			&cli.BoolFlag{
				Name:  "skip-policy",
				Usage: "Skip policy evaluation",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Store the run summary in the history backend",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	ctx := c.Context

	changes, err := iac.NewParser().ParseFile(c.String("plan"))
	if err != nil {
		return fmt.Errorf("failed to parse terraform plan: %w", err)
	}
	estimates, err := loadEstimates(c.String("estimates"))
	if err != nil {
		return err
	}
	period, err := units.ParsePeriod(c.String("period"))
	if err != nil {
		return err
	}
	history, err := loadHistory(c.String("history"), period)
	if err != nil {
		return err
	}

	store, err := openStore(c)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	cfg := estimation.DefaultConfig()
	cfg.Simulation.Workers = c.Int("workers")
	engine := estimation.NewEngine(cfg).WithLogger(slog.Default())
	if store != nil {
		engine.WithHistorySource(store)
	}

	inputs := buildInputs(changes, estimates, history)
	slog.Info("analyzing plan",
		"resources", len(changes),
		"changed", len(inputs),
		"estimated", len(estimates),
	)

	analysis, err := engine.Analyze(ctx, estimation.Request{
		Resources:   inputs,
		Environment: c.String("env"),
		Simulate:    c.Bool("simulate"),
		RunCount:    c.Int("runs"),
		Seed:        c.Uint64("seed"),
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if c.Bool("record") {
		if store == nil {
			return fmt.Errorf("--record needs a history backend")
		}
		if err := store.RecordAnalysis(ctx, analysis); err != nil {
			return err
		}
	}

	var policyResult *policy.EvaluationResult
	if !c.Bool("skip-policy") {
		policies, err := cliPolicies(c)
		if err != nil {
			return err
		}
		policyResult, err = policy.NewEngine().Evaluate(policy.EvaluationRequest{
			Analysis:       analysis,
			Environment:    c.String("env"),
			CustomPolicies: policies,
		})
		if err != nil {
			return fmt.Errorf("policy evaluation failed: %w", err)
		}
	}

	switch c.String("format") {
	case "json":
		err = outputJSON(os.Stdout, analysisOutput{Analysis: analysis, Policy: policyResult})
	case "markdown":
		err = outputAnalysisMarkdown(os.Stdout, analysis, policyResult)
	default:
		err = outputAnalysisTable(os.Stdout, analysis, policyResult)
	}
	if err != nil {
		return err
	}

	if policyResult != nil && policyResult.Decision == policy.DecisionDeny {
		return cli.Exit("", exitDenied)
	}
	return nil
}

func cliPolicies(c *cli.Context) ([]policy.Policy, error) {
	var policies []policy.Policy

	if path := c.String("policy-file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open policy file: %w", err)
		}
		defer f.Close()
		loaded, err := policy.LoadPolicies(f)
		if err != nil {
			return nil, err
		}
		policies = append(policies, loaded...)
	}

	if limit := c.Float64("cost-limit"); limit > 0 {
		policies = append(policies, policy.Policy{
			ID:        "cli-cost-limit",
			Name:      "Cost Limit",
			Type:      policy.PolicyTypeCostLimit,
			Severity:  policy.SeverityError,
			Threshold: limit,
			Enabled:   true,
		})
	}

	if budget := c.Float64("budget"); budget > 0 {
		policies = append(policies, policy.Policy{
			ID:        "cli-budget-breach",
			Name:      "Budget Breach Probability",
			Type:      policy.PolicyTypeBreachProbability,
			Severity:  policy.SeverityError,
			Threshold: c.Float64("max-breach"),
			Budget:    budget,
			Enabled:   true,
		})
	}

	return policies, nil
}

// =============================================================================
// DETECT COMMAND
// =============================================================================

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Classify and score cost regressions in a Terraform plan",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Aliases:  []string{"p"},
				Usage:    "Path to terraform plan JSON",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "estimates",
				Usage: "Path to a JSON array of per-resource cost estimates",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: func(c *cli.Context) error {
			changes, err := iac.NewParser().ParseFile(c.String("plan"))
			if err != nil {
				return fmt.Errorf("failed to parse terraform plan: %w", err)
			}
			estimates, err := loadEstimates(c.String("estimates"))
			if err != nil {
				return err
			}

			detector := regression.NewDetector(regression.DefaultScoringWeights())
			var detections []regression.Detection
			for _, in := range buildInputs(changes, estimates, nil) {
				detections = append(detections, detector.Detect(in.Change, in.Estimate))
			}
			sort.SliceStable(detections, func(i, j int) bool {
				return detections[i].SeverityScore > detections[j].SeverityScore
			})

			if c.String("format") == "json" {
				return outputJSON(os.Stdout, detections)
			}
			return outputDetections(os.Stdout, detections)
		},
	}
}

// =============================================================================
// PREDICT COMMAND
// =============================================================================

func predictCommand() *cli.Command {
	return &cli.Command{
		Name:  "predict",
		Usage: "Produce P10/P50/P90/P99 bands for a single cost estimate",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Usage:    "Resource type (e.g. aws_lambda_function)",
				Required: true,
			},
			&cli.Float64Flag{
				Name:     "cost",
				Usage:    "Point estimate",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "period",
				Value: string(units.PeriodMonthly),
				Usage: "Billing period of --cost (hourly, daily, monthly)",
			},
			&cli.Float64Flag{
				Name:  "confidence",
				Value: 0.8,
				Usage: "Estimate confidence in [0, 1]",
			},
			&cli.BoolFlag{
				Name:  "cold-start",
				Usage: "No usage history exists for the resource",
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Resource address",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: func(c *cli.Context) error {
			period, err := units.ParsePeriod(c.String("period"))
			if err != nil {
				return err
			}
			monthly := units.ToMonthly(c.Float64("cost"), period)

			predictor := probabilistic.NewPredictor(probabilistic.DefaultConfig())
			est := predictor.GenerateEstimate(monthly, c.Float64("confidence"),
				c.String("type"), c.Bool("cold-start"), c.String("id"))

			if c.String("format") == "json" {
				return outputJSON(os.Stdout, api.PredictResponse{
					Estimate:  est,
					Scenarios: est.ToScenarioAnalysis(),
				})
			}
			return outputPrediction(os.Stdout, est)
		},
	}
}

// =============================================================================
// SIMULATE COMMAND
// =============================================================================

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run a Monte Carlo simulation over explicit uncertainty inputs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "inputs",
				Usage:    "Path to a JSON array of uncertainty inputs",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "runs",
				Value: montecarlo.DefaultConfig().RunCount,
				Usage: "Number of trials",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Value: montecarlo.DefaultConfig().Seed,
				Usage: "Random seed",
			},
			&cli.IntFlag{
				Name:  "workers",
				Value: 1,
				Usage: "Parallel workers",
			},
			&cli.Float64Flag{
				Name:  "budget",
				Usage: "Report the probability of exceeding this total",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.String("inputs"))
			if err != nil {
				return fmt.Errorf("failed to read inputs: %w", err)
			}
			var inputs []montecarlo.UncertaintyInput
			if err := json.Unmarshal(data, &inputs); err != nil {
				return fmt.Errorf("failed to decode inputs: %w", err)
			}

			result, err := montecarlo.NewSimulator(montecarlo.Config{
				RunCount: c.Int("runs"),
				Seed:     c.Uint64("seed"),
				Workers:  c.Int("workers"),
			}).Run(c.Context, inputs)
			if err != nil {
				return err
			}

			resp := api.SimulateResponse{Result: result}
			if c.IsSet("budget") {
				p := result.ProbabilityAbove(c.Float64("budget"))
				resp.BreachProbability = &p
			}

			if c.String("format") == "json" {
				return outputJSON(os.Stdout, resp)
			}
			return outputSimulation(os.Stdout, resp)
		},
	}
}

// =============================================================================
// SEASONALITY COMMAND
// =============================================================================

func seasonalityCommand() *cli.Command {
	return &cli.Command{
		Name:  "seasonality",
		Usage: "Detect weekly, monthly and quarterly cost patterns in a history CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "history",
				Usage:    "Path to a cost history CSV (resource_id,timestamp,cost)",
				Required: true,
			},
			periodFlag(),
			&cli.StringFlag{
				Name:  "resource",
				Usage: "Only analyze this resource",
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Value: seasonality.DefaultConfig().Threshold,
				Usage: "Minimum pattern strength",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: func(c *cli.Context) error {
			period, err := units.ParsePeriod(c.String("period"))
			if err != nil {
				return err
			}
			history, err := loadHistory(c.String("history"), period)
			if err != nil {
				return err
			}

			cfg := seasonality.DefaultConfig()
			cfg.Threshold = c.Float64("threshold")
			detector := seasonality.NewDetector(cfg)

			results := make(map[string]seasonality.Analysis)
			for id, series := range history {
				if r := c.String("resource"); r != "" && r != id {
					continue
				}
				results[id] = detector.Detect(series)
			}
			if len(results) == 0 {
				return fmt.Errorf("no cost history for the requested resources")
			}

			if c.String("format") == "json" {
				return outputJSON(os.Stdout, results)
			}
			return outputSeasonality(os.Stdout, results)
		},
	}
}

// =============================================================================
// INGEST / MIGRATE COMMANDS
// =============================================================================

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Load a cost history CSV into the history backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Path to a cost CSV (resource_id,timestamp,cost)",
				Required: true,
			},
			periodFlag(),
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source label stored with each observation (defaults to the file name)",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Value: ingestion.DefaultBatchSize,
				Usage: "Observations per insert",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Create tables before loading",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context

			source := c.String("source")
			if source == "" {
				source = c.String("file")
			}
			f, err := os.Open(c.String("file"))
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", c.String("file"), err)
			}
			defer f.Close()

			period, err := units.ParsePeriod(c.String("period"))
			if err != nil {
				return err
			}
			observations, err := ingestion.ParseCSV(f, source)
			if err != nil {
				return err
			}
			ingestion.ToDailyCosts(observations, period)

			store, err := requireStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			if c.Bool("migrate") {
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			}

			result, err := ingestion.NewIngester(store).
				WithBatchSize(c.Int("batch-size")).
				Ingest(ctx, observations)
			if err != nil {
				return err
			}

			slog.Info("ingestion complete",
				"batch_id", result.BatchID,
				"observations", result.Observations,
				"resources", result.Resources,
				"batches", result.Batches,
				"duration", result.Duration,
			)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the history backend tables",
		Action: func(c *cli.Context) error {
			store, err := requireStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(c.Context); err != nil {
				return err
			}
			slog.Info("schema applied", "backend", c.String("history-backend"))
			return nil
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the costrisk API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"COSTRISK_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"COSTRISK_CORS_ORIGINS"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Value:   1,
				Usage:   "Parallel simulation workers",
				EnvVars: []string{"COSTRISK_SIMULATION_WORKERS"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api/v1 routes",
				EnvVars: []string{"COSTRISK_API_KEY"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}

	corsOrigins := strings.Split(c.String("cors-origins"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = corsOrigins
	cfg.APIKey = c.String("api-key")
	cfg.Estimation.Simulation.Workers = c.Int("workers")

	var history api.HistoryStore
	if store != nil {
		defer store.Close()
		history = store
	}

	return api.NewServer(history, cfg, slog.Default()).StartWithGracefulShutdown()
}
