package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Topic the watcher publishes change envelopes to and the consumer reads
// from.
const DefaultChangesTopic = "database-changes"

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// getenvList splits a comma separated value, dropping empty items.
func getenvList(k string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(k), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Debug reports whether debug logging was requested.
func Debug() bool {
	dbg, err := strconv.ParseBool(os.Getenv("DEBUG"))
	return err == nil && dbg
}

// Watcher configures the capture-and-relay process.
type Watcher struct {
	MongoURI string
	Database string

	Brokers []string
	Topic   string

	Collections       []string
	DeniedCollections []string

	BatchSize     int
	FlushInterval time.Duration

	ListenAddr string
}

func LoadWatcher() Watcher {
	return Watcher{
		MongoURI:          getenv("MONGO_URI", "mongodb://localhost:27017"),
		Database:          getenv("MONGO_DATABASE", "profession"),
		Brokers:           getenvList("KAFKA_BROKERS"),
		Topic:             getenv("CHANGES_TOPIC", DefaultChangesTopic),
		Collections:       getenvList("WATCH_COLLECTIONS"),
		DeniedCollections: getenvList("IGNORE_COLLECTIONS"),
		BatchSize:         getenvInt("BATCH_SIZE", 100),
		FlushInterval:     getenvDuration("FLUSH_INTERVAL", 5*time.Second),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
	}
}

// Consumer configures the dispatch-and-reconcile process.
type Consumer struct {
	MongoURI string
	Database string

	Brokers []string
	Topic   string
	GroupID string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration
	UpdateChannel string

	ListenAddr string
}

func LoadConsumer() Consumer {
	return Consumer{
		MongoURI:      getenv("MONGO_URI", "mongodb://localhost:27017"),
		Database:      getenv("MONGO_DATABASE", "profession"),
		Brokers:       getenvList("KAFKA_BROKERS"),
		Topic:         getenv("CHANGES_TOPIC", DefaultChangesTopic),
		GroupID:       getenv("CONSUMER_GROUP", "profession-sync"),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CacheTTL:      getenvDuration("CACHE_TTL", time.Hour),
		UpdateChannel: getenv("UPDATE_CHANNEL", "directory.updates"),
		ListenAddr:    getenv("LISTEN_ADDR", ":8081"),
	}
}

// DLQ configures the inspection CLI.
type DLQ struct {
	Brokers []string
}

func LoadDLQ() DLQ {
	return DLQ{Brokers: getenvList("KAFKA_BROKERS")}
}
