package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SecretKey string `json:"secret_key" envconfig:"SECKILL_SERVER_SECRET_KEY"`
	Secure    bool   `json:"secure" envconfig:"SECKILL_SERVER_SECURE"`
	Port      string `json:"port" envconfig:"SECKILL_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SECKILL_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"SECKILL_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"SECKILL_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig controls the asynq pipeline: how many queues the seckill
// traffic is hashed across, how often a message is retried before it is
// archived, and where the monitoring UI listens.
type QueueConfig struct {
	SeckillQueuePrefix string `json:"seckill_queue_prefix" envconfig:"SECKILL_QUEUE_PREFIX"`
	NumberOfQueues     int    `json:"number_of_queues" envconfig:"SECKILL_QUEUE_NUMBER_OF_QUEUES"`
	MaxRetryAttempts   int    `json:"max_retry_attempts" envconfig:"SECKILL_QUEUE_MAX_RETRY_ATTEMPTS"`
	Concurrency        int    `json:"concurrency" envconfig:"SECKILL_QUEUE_CONCURRENCY"`
	MonitoringPort     string `json:"monitoring_port" envconfig:"SECKILL_QUEUE_MONITORING_PORT"`
	RequestTTLHours    int    `json:"request_ttl_hours" envconfig:"SECKILL_QUEUE_REQUEST_TTL_HOURS"`
}

// RateLimitPolicy is the typed policy a protected operation is configured
// with. Algorithm is "sliding_window" or "token_bucket". UserFraction and
// IPFraction scale the global budget down for the per-user and per-address
// dimensions; zero disables that dimension.
type RateLimitPolicy struct {
	Algorithm    string  `json:"algorithm"`
	WindowSecs   int     `json:"window_secs"`
	Limit        int     `json:"limit"`
	Capacity     int     `json:"capacity"`
	RefillRate   float64 `json:"refill_rate"`
	Tokens       int     `json:"tokens"`
	UserFraction float64 `json:"user_fraction"`
	IPFraction   float64 `json:"ip_fraction"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64                   `json:"requests_per_second" envconfig:"SECKILL_RATE_LIMIT_RPS"`
	Burst              *int                       `json:"burst" envconfig:"SECKILL_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int                       `json:"cleanup_interval_sec" envconfig:"SECKILL_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
	Policies           map[string]RateLimitPolicy `json:"policies"`
}

type LockConfig struct {
	LeaseSecs int `json:"lease_secs" envconfig:"SECKILL_LOCK_LEASE_SECS"`
	WaitSecs  int `json:"wait_secs" envconfig:"SECKILL_LOCK_WAIT_SECS"`
	Shards    int `json:"shards" envconfig:"SECKILL_LOCK_SHARDS"`
}

type StockConfig struct {
	CacheTTLHours int `json:"cache_ttl_hours" envconfig:"SECKILL_STOCK_CACHE_TTL_HOURS"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"SECKILL_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Lock         LockConfig       `json:"lock"`
	Stock        StockConfig      `json:"stock"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("seckill", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called seckill.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Seckill Server"
	}

	if cnf.DataSource.Dns == "" {
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		return errors.New("redis DNS is required")
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.SeckillQueuePrefix == "" {
		cnf.Queue.SeckillQueuePrefix = "new:seckill"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 10
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5005"
	}
	if cnf.Queue.RequestTTLHours <= 0 {
		cnf.Queue.RequestTTLHours = 24
	}

	if cnf.Lock.LeaseSecs <= 0 {
		cnf.Lock.LeaseSecs = 30
	}
	if cnf.Lock.WaitSecs <= 0 {
		cnf.Lock.WaitSecs = 5
	}
	if cnf.Lock.Shards <= 0 {
		cnf.Lock.Shards = 1
	}

	if cnf.Stock.CacheTTLHours <= 0 {
		cnf.Stock.CacheTTLHours = 24
	}

	if cnf.RateLimit.Policies == nil {
		cnf.RateLimit.Policies = make(map[string]RateLimitPolicy)
	}
	if _, ok := cnf.RateLimit.Policies["seckill"]; !ok {
		cnf.RateLimit.Policies["seckill"] = RateLimitPolicy{
			Algorithm:    "sliding_window",
			WindowSecs:   60,
			Limit:        100,
			UserFraction: 0.1,
			IPFraction:   0.2,
		}
	}
	if _, ok := cnf.RateLimit.Policies["async-submit"]; !ok {
		cnf.RateLimit.Policies["async-submit"] = RateLimitPolicy{
			Algorithm:    "token_bucket",
			Capacity:     100,
			RefillRate:   20,
			Tokens:       1,
			UserFraction: 0.1,
			IPFraction:   0.2,
		}
	}

	return nil
}

// Window returns the sliding window size as a duration.
func (p RateLimitPolicy) Window() time.Duration {
	return time.Duration(p.WindowSecs) * time.Second
}

func (c LockConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSecs) * time.Second
}

func (c LockConfig) Wait() time.Duration {
	return time.Duration(c.WaitSecs) * time.Second
}

func (c StockConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c QueueConfig) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLHours) * time.Hour
}

// QueueName returns the hashed queue name for the given index, 1-based the
// way the worker registers its handlers.
func (c QueueConfig) QueueName(index int) string {
	return fmt.Sprintf("%s_%d", c.SeckillQueuePrefix, index)
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
