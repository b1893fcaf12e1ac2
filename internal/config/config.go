package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Store      StoreConfig      `mapstructure:"store"`
	Stream     StreamConfig     `mapstructure:"stream"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter"`
	Run        RunConfig        `mapstructure:"run"`
}

type SourceConfig struct {
	Path string `mapstructure:"path"`
	Name string `mapstructure:"name"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type StreamConfig struct {
	Kind   string       `mapstructure:"kind"`
	Memory MemoryConfig `mapstructure:"memory"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
}

type MemoryConfig struct {
	Partitions      int           `mapstructure:"partitions"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
	RedeliveryDelay time.Duration `mapstructure:"redelivery_delay"`
}

type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	Topic             string        `mapstructure:"topic"`
	GroupID           string        `mapstructure:"group_id"`
	ClientID          string        `mapstructure:"client_id"`
	Partitions        int32         `mapstructure:"partitions"`
	ReplicationFactor int16         `mapstructure:"replication_factor"`
	RetentionBytes    int64         `mapstructure:"retention_bytes"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
}

type DeadLetterConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
}

type RunConfig struct {
	Settle time.Duration `mapstructure:"settle"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("linesink")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Source.Name == "" {
		cfg.Source.Name = cfg.Source.Path
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.kind", "memory")
	v.SetDefault("stream.memory.partitions", 2)
	v.SetDefault("stream.memory.poll_timeout", time.Second)
	v.SetDefault("stream.memory.redelivery_delay", time.Second)
	v.SetDefault("stream.kafka.topic", "line_topic")
	v.SetDefault("stream.kafka.group_id", "line_consumer")
	v.SetDefault("stream.kafka.partitions", 2)
	v.SetDefault("stream.kafka.replication_factor", 1)
	v.SetDefault("stream.kafka.poll_timeout", time.Second)
	v.SetDefault("dead_letter.routing_key", "linesink.dead")
	v.SetDefault("run.settle", 5*time.Second)
}

func (c Config) Validate() error {
	if c.Source.Path == "" {
		return fmt.Errorf("source.path is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.Stream.Kind {
	case "memory":
	case "kafka":
		if len(c.Stream.Kafka.Brokers) == 0 {
			return fmt.Errorf("stream.kafka.brokers is required")
		}
	default:
		return fmt.Errorf("unsupported stream.kind %q", c.Stream.Kind)
	}
	if c.DeadLetter.Enabled {
		if c.DeadLetter.URL == "" {
			return fmt.Errorf("dead_letter.url is required")
		}
		if c.DeadLetter.Exchange == "" {
			return fmt.Errorf("dead_letter.exchange is required")
		}
	}
	return nil
}
