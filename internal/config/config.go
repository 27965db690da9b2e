// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases and artifacts, always absolute
	Port     int
	DevMode  bool
	LogLevel string

	// NAV ingest
	NAVFeedPath  string // CSV feed of historical NAVs
	LiveQuoteURL string // AMFI NAVAll.txt-format endpoint, empty disables the live merge

	Pipeline PipelineConfig
	Backup   BackupConfig
}

// PipelineConfig holds the tunable parameters of the build pipeline.
// Defaults match the reference parameterization; changing any of them
// invalidates persisted model artifacts via the content hash.
type PipelineConfig struct {
	RiskFreeRate         float64 // annual, used by Sharpe
	WinsorLower          float64 // lower winsorization quantile
	WinsorUpper          float64 // upper winsorization quantile
	Seed                 int64   // PRNG seed for PCA/k-means/forest/resampling
	KMeansRestarts       int
	ForestTrees          int
	ScoreWeightSharpe    float64
	ScoreWeightCAGR      float64
	ScoreWeightDrawdown  float64
	ImprovementThreshold float64 // min CAGR edge a peer needs to trigger a switch
	TopN                 int     // default recommendation list size
	BalanceFactorLarge   float64 // resampling factor for over-represented labels
	BalanceFactorMid     float64
	BalanceFactorSmall   float64
	CronSpec             string // rebuild schedule, empty disables the cron job
}

// BackupConfig holds optional S3 export settings. Export is disabled
// unless Bucket is set.
type BackupConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores, empty for AWS
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	RetainCount     int // number of exports kept before rotation
}

// Enabled reports whether artifact export is configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional, missing file is fine
	_ = godotenv.Load()

	dataDir := getEnv("FUNDSAGE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("FUNDSAGE_PORT", 8002),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		NAVFeedPath:  getEnv("NAV_FEED_PATH", filepath.Join(absDataDir, "nav_history.csv")),
		LiveQuoteURL: getEnv("LIVE_QUOTE_URL", ""),
		Pipeline: PipelineConfig{
			RiskFreeRate:         getEnvAsFloat("RISK_FREE_RATE", 0.065),
			WinsorLower:          getEnvAsFloat("WINSOR_LOWER", 0.03),
			WinsorUpper:          getEnvAsFloat("WINSOR_UPPER", 0.97),
			Seed:                 int64(getEnvAsInt("PIPELINE_SEED", 42)),
			KMeansRestarts:       getEnvAsInt("KMEANS_RESTARTS", 10),
			ForestTrees:          getEnvAsInt("FOREST_TREES", 100),
			ScoreWeightSharpe:    getEnvAsFloat("SCORE_WEIGHT_SHARPE", 0.5),
			ScoreWeightCAGR:      getEnvAsFloat("SCORE_WEIGHT_CAGR", 0.3),
			ScoreWeightDrawdown:  getEnvAsFloat("SCORE_WEIGHT_DRAWDOWN", 0.2),
			ImprovementThreshold: getEnvAsFloat("IMPROVEMENT_THRESHOLD", 0.03),
			TopN:                 getEnvAsInt("RECOMMEND_TOP_N", 5),
			BalanceFactorLarge:   getEnvAsFloat("BALANCE_FACTOR_LARGE", 0.85),
			BalanceFactorMid:     getEnvAsFloat("BALANCE_FACTOR_MID", 1.1),
			BalanceFactorSmall:   getEnvAsFloat("BALANCE_FACTOR_SMALL", 1.5),
			CronSpec:             getEnv("REBUILD_CRON", ""),
		},
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "fundsage"),
			RetainCount:     getEnvAsInt("BACKUP_RETAIN_COUNT", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.WinsorLower < 0 || p.WinsorUpper > 1 || p.WinsorLower >= p.WinsorUpper {
		return fmt.Errorf("invalid winsor quantiles [%v, %v]", p.WinsorLower, p.WinsorUpper)
	}
	if p.ForestTrees < 1 {
		return fmt.Errorf("forest must have at least one tree, got %d", p.ForestTrees)
	}
	if p.KMeansRestarts < 1 {
		return fmt.Errorf("k-means needs at least one restart, got %d", p.KMeansRestarts)
	}
	if p.TopN < 1 {
		return fmt.Errorf("top N must be positive, got %d", p.TopN)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
