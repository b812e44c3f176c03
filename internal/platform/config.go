package platform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the churn.yaml document.
//
//	adapter: sqlite
//	dsn: ./churn.db
//	seed: 1000000
//	flush:
//	  period: 100ms
//	  retries: 2
//	queue:
//	  max_depth: 0
//	producers: ["random/*", "visible/*"]
//	http:
//	  addr: ":8080"
//	range_file: ./range.yaml
type FileConfig struct {
	Adapter   string      `yaml:"adapter"`
	DSN       string      `yaml:"dsn"`
	Seed      *int        `yaml:"seed"`
	Flush     FlushConfig `yaml:"flush"`
	Queue     QueueConfig `yaml:"queue"`
	Producers []string    `yaml:"producers"`
	HTTP      HTTPConfig  `yaml:"http"`
	RangeFile string      `yaml:"range_file"`
	DevSafety *bool       `yaml:"dev_safety"`
}

// FlushConfig configures the flush loop.
type FlushConfig struct {
	Period      time.Duration `yaml:"period"`
	Retries     *int          `yaml:"retries"`
	Concurrency int           `yaml:"concurrency"`
}

// QueueConfig configures the mutation queue.
type QueueConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig reads and decodes the config file at path.
func LoadConfig(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a churn.yaml document. Unknown keys are rejected.
func ParseConfig(data []byte) (FileConfig, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.Adapter {
	case "", AdapterMemory, AdapterSQLite, AdapterPostgres:
	default:
		return FileConfig{}, fmt.Errorf("parse config: unknown adapter %q", cfg.Adapter)
	}
	if cfg.Flush.Period < 0 {
		return FileConfig{}, fmt.Errorf("parse config: negative flush period")
	}
	return cfg, nil
}

// Options translates the file into functional options. Unset fields keep
// their defaults.
func (c FileConfig) Options() []Option {
	var opts []Option
	if c.Adapter != "" {
		opts = append(opts, WithAdapter(c.Adapter))
	}
	if c.Seed != nil {
		opts = append(opts, WithSeedCount(*c.Seed))
	}
	if c.Flush.Period > 0 {
		opts = append(opts, WithFlushPeriod(c.Flush.Period))
	}
	if c.Flush.Retries != nil {
		opts = append(opts, WithFlushRetries(*c.Flush.Retries))
	}
	if c.Flush.Concurrency > 0 {
		opts = append(opts, WithFlushConcurrency(c.Flush.Concurrency))
	}
	if c.Queue.MaxDepth > 0 {
		opts = append(opts, WithMaxQueueDepth(c.Queue.MaxDepth))
	}
	if len(c.Producers) > 0 {
		opts = append(opts, WithProducers(c.Producers...))
	}
	if c.DevSafety != nil {
		opts = append(opts, WithDevSafety(*c.DevSafety))
	}
	return opts
}
