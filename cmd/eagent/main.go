// =============================================================================
// eagent 主入口
// =============================================================================
// 单篇文档的证据定位与验证 CLI
//
// 使用方法:
//
//	eagent run --doc doc.json --out result.json   # 对一篇文档执行管线
//	eagent run --config eagent.yaml --doc doc.json
//	eagent cache stats                            # 缓存统计
//	eagent cache prune --days 30                  # 按创建时间清理缓存
//	eagent version                                # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Younthing/eagent-sub001/config"
	"github.com/Younthing/eagent-sub001/internal/metrics"
	"github.com/Younthing/eagent-sub001/internal/telemetry"
	"github.com/Younthing/eagent-sub001/persist"
	"github.com/Younthing/eagent-sub001/pipeline"
	"github.com/Younthing/eagent-sub001/rob2"
	"github.com/Younthing/eagent-sub001/schema"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(os.Args[2:])
	case "cache":
		runCache(os.Args[2:])
	case "version":
		fmt.Printf("eagent %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`eagent - evidence location and validation for RCT papers

Usage:
  eagent run --doc <doc.json> [--config <file>] [--out <result.json>]
  eagent cache stats [--config <file>]
  eagent cache prune --days <n> [--config <file>]
  eagent version
`)
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}
	return cfg
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// =============================================================================
// run 命令
// =============================================================================

func runPipeline(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	docPath := fs.String("doc", "", "Path to parsed document JSON (required)")
	outPath := fs.String("out", "", "Path for the result JSON (default: stdout)")
	fs.Parse(args)

	if *docPath == "" {
		fatalf("--doc is required")
	}

	cfg := loadConfig(*configPath)
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		fatalf("failed to init telemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(ctx)
	}()

	doc, err := loadDocument(*docPath)
	if err != nil {
		fatalf("failed to load document: %v", err)
	}

	bank, err := rob2.LoadQuestionBank(cfg.Bank.QuestionsPath)
	if err != nil {
		fatalf("failed to load question bank: %v", err)
	}
	rules, err := rob2.LoadLocatorRules(cfg.Bank.RulesPath)
	if err != nil {
		fatalf("failed to load locator rules: %v", err)
	}
	if err := rob2.ValidateAgainstBank(rules, bank); err != nil {
		fatalf("locator rules do not match question bank: %v", err)
	}

	store, cache := openPersistence(cfg, logger)
	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)

	if cfg.Judge.Provider != "" {
		logger.Warn("judge provider configured but no backend is compiled in, running without judge",
			zap.String("provider", cfg.Judge.Provider))
	}

	pipe, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Cache:   cache,
		Metrics: collector,
		Logger:  logger,
	})
	if err != nil {
		fatalf("failed to build pipeline: %v", err)
	}

	var runRecord *persist.RunRecord
	if store != nil {
		runRecord = recordRunStart(store, cfg, *docPath, doc, bank, logger)
	}

	started := time.Now()
	result, err := pipe.Run(context.Background(), doc, bank, rules)
	runtimeMS := time.Since(started).Milliseconds()
	if err != nil {
		if runRecord != nil {
			_ = store.CompleteRun(runRecord.RunID, "failed", runtimeMS, err.Error())
		}
		fatalf("pipeline run failed: %v", err)
	}

	if runRecord != nil {
		result.RunID = runRecord.RunID
		status := "completed"
		if result.Degraded {
			status = "degraded"
		}
		if err := store.CompleteRun(runRecord.RunID, status, runtimeMS, ""); err != nil {
			logger.Warn("failed to finalize run record", zap.Error(err))
		}
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatalf("failed to encode result: %v", err)
	}

	if *outPath == "" {
		fmt.Println(string(payload))
	} else {
		if err := os.WriteFile(*outPath, payload, 0o644); err != nil {
			fatalf("failed to write result: %v", err)
		}
		if store != nil && runRecord != nil {
			recordResultArtifact(store, runRecord.RunID, *outPath, payload, logger)
		}
	}

	logger.Info("run finished",
		zap.String("run_id", result.RunID),
		zap.Bool("completeness_passed", result.CompletenessPassed),
		zap.Bool("degraded", result.Degraded),
		zap.Int("attempts", result.Attempts),
		zap.Int64("runtime_ms", runtimeMS))
}

func loadDocument(path string) (*schema.DocStructure, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc schema.DocStructure
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document json: %w", err)
	}
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("document has no sections")
	}
	return &doc, nil
}

// openPersistence 按配置打开出处存储与阶段缓存。
// 数据库不可用时降级为无持久化运行，只告警不中止。
func openPersistence(cfg *config.Config, logger *zap.Logger) (*persist.Store, pipeline.StageCache) {
	db, err := persist.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		logger.Warn("persistence unavailable, running without provenance and cache", zap.Error(err))
		return nil, nil
	}
	store := persist.NewStore(db, logger)

	var entries persist.EntryStore = store
	if cfg.Cache.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		entries = persist.NewRedisEntryStore(client, cfg.Redis.KeyPrefix)
	}

	scope, err := persist.ParseScope(cfg.Cache.Scope)
	if err != nil {
		fatalf("invalid cache scope: %v", err)
	}
	cache, err := persist.NewCacheManager(cfg.Cache.Dir, entries, scope, logger)
	if err != nil {
		fatalf("failed to init cache: %v", err)
	}
	return store, cache
}

func recordRunStart(store *persist.Store, cfg *config.Config, docPath string, doc *schema.DocStructure, bank *schema.QuestionSet, logger *zap.Logger) *persist.RunRecord {
	sha, err := persist.Sha256File(docPath)
	if err != nil {
		logger.Warn("failed to hash document file", zap.Error(err))
		return nil
	}
	info, err := os.Stat(docPath)
	if err != nil {
		logger.Warn("failed to stat document file", zap.Error(err))
		return nil
	}
	docRecord, err := store.CreateDocument(sha, info.Name(), info.Size())
	if err != nil {
		logger.Warn("failed to record document", zap.Error(err))
		return nil
	}

	options, err := persist.StableJSON(cfg.Pipeline)
	if err != nil {
		logger.Warn("failed to serialize pipeline options", zap.Error(err))
		return nil
	}
	optionsHash := persist.Sha256Bytes([]byte(options))
	run, err := store.CreateRun(docRecord.DocID, options, optionsHash, cfg.Pipeline.CodeVersion, bank.Version)
	if err != nil {
		logger.Warn("failed to record run", zap.Error(err))
		return nil
	}
	return run
}

func recordResultArtifact(store *persist.Store, runID, path string, payload []byte, logger *zap.Logger) {
	artifact, err := store.InsertArtifact(persist.Sha256Bytes(payload), "pipeline_result", path, int64(len(payload)))
	if err != nil {
		logger.Warn("failed to record result artifact", zap.Error(err))
		return
	}
	if err := store.LinkArtifact(runID, artifact.ArtifactID, "pipeline_result"); err != nil {
		logger.Warn("failed to link result artifact", zap.Error(err))
	}
}

// =============================================================================
// cache 命令
// =============================================================================

func runCache(args []string) {
	if len(args) < 1 {
		fatalf("cache requires a subcommand: stats | prune")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("cache "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	days := fs.Int("days", 30, "Prune entries created more than N days ago")
	fs.Parse(rest)

	cfg := loadConfig(*configPath)
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	_, cache := openPersistence(cfg, logger)
	manager, ok := cache.(*persist.CacheManager)
	if !ok || manager == nil {
		fatalf("cache unavailable")
	}

	switch sub {
	case "stats":
		stats, err := manager.Stats()
		if err != nil {
			fatalf("failed to read cache stats: %v", err)
		}
		for _, stat := range stats {
			fmt.Printf("%-24s %d entries\n", stat.Stage, stat.Count)
		}
		if len(stats) == 0 {
			fmt.Println("cache is empty")
		}
	case "prune":
		removed, err := manager.PruneOlderThan(*days)
		if err != nil {
			fatalf("failed to prune cache: %v", err)
		}
		fmt.Printf("removed %d entries older than %d days\n", removed, *days)
	default:
		fatalf("unknown cache subcommand: %s", sub)
	}
}
