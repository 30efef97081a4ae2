package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("GRADING_UPSTREAM_TIMEOUT", "2s")
	t.Setenv("DATASET_DIR", "/srv/data")
	t.Setenv("DATASET_RANK_TABLE", "/tmp/rank.csv")
	t.Setenv("CASDOOR_CERT", `-----BEGIN CERTIFICATE-----\nabc\n-----END CERTIFICATE-----`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Grading.UpstreamTimeout)
	assert.Equal(t, 15*time.Second, cfg.Grading.GuardTTL)
	assert.Equal(t, "/srv/data/leet_private_db.json", cfg.Dataset.AnswerDB)
	assert.Equal(t, "/tmp/rank.csv", cfg.Dataset.RankTable)
	assert.Contains(t, cfg.Casdoor.Cert, "\nabc\n")
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "bad timeout", env: map[string]string{"GRADING_UPSTREAM_TIMEOUT": "soon"}},
		{name: "bad guard ttl", env: map[string]string{"GRADING_GUARD_TTL": "15"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfigDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable TimeZone=UTC", d.DSN())

	d.URL = "postgres://u:p@db/n"
	assert.Equal(t, "postgres://u:p@db/n", d.DSN())
}
