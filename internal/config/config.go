package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	Database DatabaseConfig
	RedisURL string

	Casdoor CasdoorConfig
	Kafka   KafkaConfig
	Dataset DatasetConfig
	Grading GradingConfig
}

type DatabaseConfig struct {
	URL         string
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

type KafkaConfig struct {
	Brokers     []string
	GradedTopic string
}

// DatasetConfig points at the static answer key and score tables.
type DatasetConfig struct {
	Dir            string
	AnswerDB       string
	ScoreTable     string
	RankTable      string
	LangStars      string
	LogicStars     string
	SubjectAnswers string
}

type GradingConfig struct {
	UpstreamTimeout time.Duration
	GuardTTL        time.Duration
}

func LoadConfig() (*Config, error) {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := getDuration("GRADING_UPSTREAM_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}
	guardTTL, err := getDuration("GRADING_GUARD_TTL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	connLifetime, err := getDuration("DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return nil, err
	}

	datasetDir := getEnv("DATASET_DIR", "data")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    level,
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "grading"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			AutoMigrate:     getBool("DB_AUTO_MIGRATE", false),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connLifetime,
		},
		RedisURL: os.Getenv("REDIS_URL"),
		Casdoor: CasdoorConfig{
			Endpoint:     os.Getenv("CASDOOR_ENDPOINT"),
			ClientID:     os.Getenv("CASDOOR_CLIENT_ID"),
			ClientSecret: os.Getenv("CASDOOR_CLIENT_SECRET"),
			Cert:         os.Getenv("CASDOOR_CERT"),
			Organization: os.Getenv("CASDOOR_ORGANIZATION"),
			Application:  os.Getenv("CASDOOR_APPLICATION"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
			GradedTopic: getEnv("KAFKA_TOPIC_GRADED", "exam.attempt_graded"),
		},
		Dataset: DatasetConfig{
			Dir:            datasetDir,
			AnswerDB:       getEnv("DATASET_ANSWER_DB", filepath.Join(datasetDir, "leet_private_db.json")),
			ScoreTable:     getEnv("DATASET_SCORE_TABLE", filepath.Join(datasetDir, "leet_score_table.json")),
			RankTable:      getEnv("DATASET_RANK_TABLE", filepath.Join(datasetDir, "leet_total_standard_score_cum_rank.csv")),
			LangStars:      getEnv("DATASET_LANG_STARS", filepath.Join(datasetDir, "lang_question_difficulty.csv")),
			LogicStars:     getEnv("DATASET_LOGIC_STARS", filepath.Join(datasetDir, "logic_question_difficulty.csv")),
			SubjectAnswers: getEnv("DATASET_SUBJECT_ANSWERS", filepath.Join(datasetDir, "subject_answers.csv")),
		},
		Grading: GradingConfig{
			UpstreamTimeout: upstreamTimeout,
			GuardTTL:        guardTTL,
		},
	}

	if cfg.Casdoor.Cert != "" {
		// certificates pasted into env files usually carry literal \n
		cfg.Casdoor.Cert = strings.ReplaceAll(cfg.Casdoor.Cert, `\n`, "\n")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw, err)
	}
	return level, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
