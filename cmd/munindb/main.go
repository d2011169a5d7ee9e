// Package main provides the MuninDB CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/munindb/pkg/config"
	"github.com/orneryd/munindb/pkg/logger"
	"github.com/orneryd/munindb/pkg/munindb"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	flagDataDir  string
	flagConfig   string
	flagInMemory bool
	flagDebug    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "munindb",
		Short: "MuninDB - Pattern-Based Associative Memory Engine",
		Long: `MuninDB is an embedded associative memory engine written in Go.
Concepts are stored as clusters of trainable neurons, routed through a
learned region codebook, and linked by a Hebbian synapse graph.

Features:
  • Deterministic feature encoding with named feature signals
  • Novelty-driven cluster sizing with bounded growth
  • Hebbian co-activation links across related concepts
  • Partitioned on-disk persistence with lazy cluster hydration
  • Portable compressed snapshots for backup and transfer`,
	}

	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default ./data or MUNINDB_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to yaml config file")
	rootCmd.PersistentFlags().BoolVar(&flagInMemory, "in-memory", false, "Run without disk persistence")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MuninDB v%s (%s)\n", version, commit)
		},
	})

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new MuninDB data directory",
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	// Learn command
	learnCmd := &cobra.Command{
		Use:   "learn [concept]",
		Short: "Learn a concept, optionally with named feature signals",
		Long: `Learn a concept into the memory engine.

Named features attach extra signal dimensions to the training input:

  munindb learn apple --feature fruit=1.0 --feature red=0.7`,
		Args: cobra.ExactArgs(1),
		RunE: runLearn,
	}
	learnCmd.Flags().StringArray("feature", nil, "Named feature as name=value (repeatable)")
	rootCmd.AddCommand(learnCmd)

	// Process command
	processCmd := &cobra.Command{
		Use:   "process [input]",
		Short: "Process an input and report which concepts activate",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcess,
	}
	processCmd.Flags().StringArray("feature", nil, "Named feature as name=value (repeatable)")
	processCmd.Flags().Bool("json", false, "Emit the raw result as JSON")
	rootCmd.AddCommand(processCmd)

	// Stats command
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().Bool("verbose", false, "Include cache and codebook diagnostics")
	rootCmd.AddCommand(statsCmd)

	// Maintenance command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "maintenance",
		Short: "Run one maintenance cycle (eviction, decay, pruning)",
		RunE:  runMaintenance,
	})

	// Export command
	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the database as a portable snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	rootCmd.AddCommand(exportCmd)

	// Import command
	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a snapshot, replacing current contents",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	rootCmd.AddCommand(importCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves configuration with file-then-env-then-flag precedence.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if flagConfig != "" {
		fileCfg, err := config.LoadFromFile(flagConfig)
		if err != nil {
			return nil, err
		}
		fileCfg.ApplyEnv()
		cfg = fileCfg
	} else {
		cfg = config.LoadFromEnv()
	}

	if flagDataDir != "" {
		cfg.Database.DataDir = flagDataDir
	}
	if flagInMemory {
		cfg.Database.InMemory = true
	}
	if flagDebug {
		cfg.Logging.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDB opens the engine from the resolved CLI configuration.
func openDB(cfg *config.Config) (*munindb.DB, error) {
	log := logger.New(cfg.Logging.Debug)
	ecfg := engineConfig(cfg, log)
	dir := cfg.Database.DataDir
	if cfg.Database.InMemory {
		dir = ""
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return munindb.Open(dir, ecfg)
}

// engineConfig maps the CLI configuration tree onto the engine's Config.
func engineConfig(cfg *config.Config, log *zap.Logger) *munindb.Config {
	ecfg := munindb.DefaultConfig()
	ecfg.ReuseThreshold = cfg.Engine.ReuseThreshold
	ecfg.NeighborRegions = cfg.Engine.NeighborRegions
	ecfg.GrowthStep = cfg.Engine.GrowthStep
	ecfg.Quantizer = cfg.Engine.Quantizer
	ecfg.Codebook.Size = cfg.Engine.CodebookSize
	ecfg.Codebook.Decay = cfg.Engine.CodebookDecay
	ecfg.Sizing.Strategy = cfg.Engine.SizingStrategy
	ecfg.Sizing.ComplexityMode = cfg.Engine.ComplexityMode
	ecfg.IdleEviction = cfg.Engine.IdleEviction
	ecfg.AffinityCacheSize = cfg.Engine.AffinityCacheSize
	ecfg.AffinityCacheTTL = cfg.Engine.AffinityCacheTTL
	ecfg.EncoderCacheSize = cfg.Engine.EncoderCacheSize
	ecfg.Partitions = cfg.Database.Partitions
	ecfg.FlushConcurrency = cfg.Database.FlushConcurrency
	ecfg.SyncWrites = cfg.Database.SyncWrites
	ecfg.LowMemory = cfg.Database.LowMemoryProfile()
	ecfg.Logger = log
	return ecfg
}

// parseFeatures turns repeated name=value flags into a feature map.
func parseFeatures(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	features := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid feature %q (want name=value)", p)
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid feature value in %q: %w", p, err)
		}
		features[name] = val
	}
	return features, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dataDir := cfg.Database.DataDir

	fmt.Printf("📂 Initializing MuninDB data directory in %s\n", dataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dataDir, "munindb.yaml")
	configContent := `# MuninDB Configuration
database:
  data_dir: ./data
  partitions: 16
  flush_concurrency: 4
  sync_writes: false

engine:
  reuse_threshold: 0.85
  neighbor_regions: 3
  growth_step: 50
  quantizer: codebook
  codebook_size: 512
  codebook_decay: 0.99
  sizing_strategy: hypernet
  complexity_mode: entropy
  idle_eviction: 10m

logging:
  debug: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println("✅ Data directory initialized")
	fmt.Printf("   Config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Learn something:   munindb learn apple --feature fruit=1.0 --data-dir %s\n", dataDir)
	fmt.Printf("  2. Query it:          munindb process \"an apple\" --data-dir %s\n", dataDir)
	return nil
}

func runLearn(cmd *cobra.Command, args []string) error {
	concept := args[0]
	pairs, _ := cmd.Flags().GetStringArray("feature")
	features, err := parseFeatures(pairs)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	res, err := db.LearnConcept(ctx, concept, features)
	if err != nil {
		return fmt.Errorf("learning %q: %w", concept, err)
	}

	fmt.Printf("🧠 Learned %q in %v\n", concept, time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Cluster:         %s\n", res.ClusterID)
	fmt.Printf("   Neurons:         %d (%d new)\n", res.NeuronsInvolved, res.NeuronsCreated)
	if mastery := db.ConceptMasteryLevel(concept); mastery > 0 {
		fmt.Printf("   Mastery:         %.2f\n", mastery)
	}
	return nil
}

func runProcess(cmd *cobra.Command, args []string) error {
	input := args[0]
	pairs, _ := cmd.Flags().GetStringArray("feature")
	asJSON, _ := cmd.Flags().GetBool("json")
	features, err := parseFeatures(pairs)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := db.ProcessInput(ctx, input, features)
	if err != nil {
		return fmt.Errorf("processing input: %w", err)
	}

	if asJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("💬 %s\n", res.Response)
	fmt.Printf("   Confidence:      %.2f\n", res.Confidence)
	fmt.Printf("   Clusters:        %d\n", len(res.ActivatedClusters))
	fmt.Printf("   Neurons fired:   %d\n", res.ActivatedNeuronCount)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stats := db.EnhancedStats()

	fmt.Printf("📊 MuninDB Statistics (%s)\n", cfg.String())
	fmt.Printf("   Concepts:        %d\n", stats.Concepts)
	fmt.Printf("   Clusters:        %d (%d loaded)\n", stats.TotalClusters, stats.LoadedClusters)
	fmt.Printf("   Neurons:         %d\n", stats.TotalNeurons)
	fmt.Printf("   Synapses:        %d\n", stats.SynapseCount)
	fmt.Printf("   Regions:         %d\n", stats.RegionCount)
	fmt.Printf("   Learn events:    %d\n", stats.LearnEvents)
	fmt.Printf("   Storage:         %s\n", config.FormatMemorySize(stats.StorageBytes))

	if verbose {
		fmt.Println()
		fmt.Printf("   Codebook seeded: %d\n", stats.CodebookSeeded)
		fmt.Printf("   Commitment EMA:  %.4f\n", stats.CommitmentLoss)
		fmt.Printf("   Encoder cache:   %d hits / %d misses (%.0f%% hit rate)\n",
			stats.EncoderCache.Hits, stats.EncoderCache.Misses, stats.EncoderCache.HitRate)
		fmt.Printf("   Affinity cache:  %d hits / %d misses\n",
			stats.AffinityCache.Hits, stats.AffinityCache.Misses)
	}
	return nil
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	before := db.Stats()
	start := time.Now()
	if err := db.Maintenance(ctx); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	after := db.Stats()

	fmt.Printf("🔄 Maintenance finished in %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Clusters loaded: %d → %d\n", before.LoadedClusters, after.LoadedClusters)
	fmt.Printf("   Synapses:        %d → %d\n", before.SynapseCount, after.SynapseCount)
	fmt.Printf("   Regions tracked: %d\n", after.RegionCount)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	target := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fmt.Printf("📦 Exporting snapshot to %s\n", target)

	// Write to a temp file in the target directory, then rename: a failed
	// export never leaves a truncated snapshot at the destination.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".munindb-export-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := db.ExportSnapshot(ctx, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("exporting: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("moving snapshot into place: %w", err)
	}

	info, err := os.Stat(target)
	if err == nil {
		fmt.Printf("✅ Snapshot written (%s)\n", config.FormatMemorySize(info.Size()))
	} else {
		fmt.Println("✅ Snapshot written")
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	source := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fmt.Printf("📥 Importing snapshot from %s\n", source)
	start := time.Now()
	if err := db.ImportSnapshot(ctx, f); err != nil {
		return fmt.Errorf("importing: %w", err)
	}

	stats := db.Stats()
	fmt.Printf("✅ Imported %d clusters, %d neurons, %d synapses in %v\n",
		stats.TotalClusters, stats.TotalNeurons, stats.SynapseCount,
		time.Since(start).Round(time.Millisecond))
	return nil
}
