package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`

	Loops       LoopsConfig       `mapstructure:"loops"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Costs       CostsConfig       `mapstructure:"costs"`
	Proposal    ProposalConfig    `mapstructure:"proposal"`
	Stage       StageConfig       `mapstructure:"stage"`
	Credibility CredibilityConfig `mapstructure:"credibility"`
	MarketData  MarketDataConfig  `mapstructure:"market_data"`
	Generator   GeneratorConfig   `mapstructure:"generator"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	CredibilityRecompute string `mapstructure:"credibility_recompute"`
	MarkToMarket         string `mapstructure:"mark_to_market"`
	RetrySweep           string `mapstructure:"retry_sweep"`
}

// LoopConfig is the boot-time default for one scheduler loop; runtime
// start/stop commands override it and are persisted in loop_states.
type LoopConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Domains  []string      `mapstructure:"domains"`
}

type LoopsConfig struct {
	Idea      LoopConfig `mapstructure:"idea"`
	Portfolio LoopConfig `mapstructure:"portfolio"`
}

type ValidationConfig struct {
	PassThreshold float64            `mapstructure:"pass_threshold"`
	FailThreshold float64            `mapstructure:"fail_threshold"`
	Weights       map[string]float64 `mapstructure:"weights"`
}

// CostScheduleConfig holds per-instrument trading cost parameters.
type CostScheduleConfig struct {
	HalfSpreadBps     float64 `mapstructure:"half_spread_bps"`
	ImpactCoefficient float64 `mapstructure:"impact_coefficient"`
	ImpactExponent    float64 `mapstructure:"impact_exponent"`
	CommissionRate    float64 `mapstructure:"commission_rate"`
	MinCommission     float64 `mapstructure:"min_commission"`
	SECFeeRate        float64 `mapstructure:"sec_fee_rate"`
}

type CostsConfig struct {
	// RiskAppetite scales spread and impact: conservative|moderate|aggressive.
	RiskAppetite string                        `mapstructure:"risk_appetite"`
	Schedules    map[string]CostScheduleConfig `mapstructure:"schedules"`
}

type ProposalConfig struct {
	// ScaleDownPolicy is applied when a requested allocation would drive
	// cash negative: pro_rata|largest_first.
	ScaleDownPolicy string `mapstructure:"scale_down_policy"`
}

type StageConfig struct {
	Precedence []string `mapstructure:"precedence"`
}

type CredibilityConfig struct {
	PriorWeight  float64 `mapstructure:"prior_weight"`
	DefaultPrior float64 `mapstructure:"default_prior"`
}

type MarketDataConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type GeneratorConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	LensEndpoint string        `mapstructure:"lens_endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IDEA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.credibility_recompute", "@every 6h")
	v.SetDefault("cron.mark_to_market", "@every 30s")
	v.SetDefault("cron.retry_sweep", "@every 10m")

	v.SetDefault("loops.idea.enabled", false)
	v.SetDefault("loops.idea.interval", "5m")
	v.SetDefault("loops.portfolio.enabled", false)
	v.SetDefault("loops.portfolio.interval", "15m")

	v.SetDefault("validation.pass_threshold", 0.65)
	v.SetDefault("validation.fail_threshold", 0.40)

	v.SetDefault("costs.risk_appetite", "moderate")
	v.SetDefault("costs.schedules.equity.half_spread_bps", 2.5)
	v.SetDefault("costs.schedules.equity.impact_coefficient", 0.0000008)
	v.SetDefault("costs.schedules.equity.impact_exponent", 1.25)
	v.SetDefault("costs.schedules.equity.commission_rate", 0.0005)
	v.SetDefault("costs.schedules.equity.min_commission", 1.0)
	v.SetDefault("costs.schedules.equity.sec_fee_rate", 0.0000278)
	v.SetDefault("costs.schedules.etf.half_spread_bps", 1.5)
	v.SetDefault("costs.schedules.etf.impact_coefficient", 0.0000005)
	v.SetDefault("costs.schedules.etf.impact_exponent", 1.2)
	v.SetDefault("costs.schedules.etf.commission_rate", 0.0003)
	v.SetDefault("costs.schedules.etf.min_commission", 1.0)
	v.SetDefault("costs.schedules.etf.sec_fee_rate", 0.0000278)
	v.SetDefault("costs.schedules.crypto.half_spread_bps", 10)
	v.SetDefault("costs.schedules.crypto.impact_coefficient", 0.000002)
	v.SetDefault("costs.schedules.crypto.impact_exponent", 1.35)
	v.SetDefault("costs.schedules.crypto.commission_rate", 0.001)
	v.SetDefault("costs.schedules.crypto.min_commission", 0)
	v.SetDefault("costs.schedules.crypto.sec_fee_rate", 0)

	v.SetDefault("proposal.scale_down_policy", "pro_rata")
	v.SetDefault("stage.precedence", []string{"error", "running", "idle"})
	v.SetDefault("credibility.prior_weight", 0.4)
	v.SetDefault("credibility.default_prior", 0.5)

	v.SetDefault("market_data.provider", "yahoo")
	v.SetDefault("market_data.timeout", "10s")
	v.SetDefault("generator.endpoint", "")
	v.SetDefault("generator.lens_endpoint", "")
	v.SetDefault("generator.timeout", "60s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "idea-pipeline-events")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
