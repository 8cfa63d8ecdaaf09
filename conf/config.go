package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tradectl/internal/errs"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// 配置加载（API密钥等）

const (
	EnvProduction = "production"
	EnvDemo       = "demo"
)

type Okx struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Password  string `yaml:"password"`
}

// Endpoint 各环境的访问地址，启动时确定，不在运行时修改
type Endpoint struct {
	Rest      string `yaml:"rest" validate:"required,url"`
	Websocket string `yaml:"websocket" validate:"required"`
	Simulated bool   `yaml:"simulated"` // okx 模拟盘需要 x-simulated-trading 头
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

type TradingConfig struct {
	Symbol              string        `yaml:"symbol" validate:"required"`
	Timeframe           string        `yaml:"timeframe" validate:"required,oneof=1m 5m 15m 30m 1H 4H"`
	Leverage            int           `yaml:"leverage" validate:"gte=1,lte=125"`
	MgnMode             string        `yaml:"mgn-mode" validate:"oneof=cross isolated"`
	PositionSizePercent float64       `yaml:"position-size-percent" validate:"gt=0,lte=100"`
	MinOrderSize        float64       `yaml:"min-order-size" validate:"gt=0"`
	QtyStep             float64       `yaml:"qty-step" validate:"gt=0"`
	BackfillDays        int           `yaml:"backfill-days" validate:"gte=1"`
	CallTimeout         time.Duration `yaml:"call-timeout"`
	// PositionGrace 开仓后交易所仓位尚不可见的容忍时间，0 表示完全以交易所为准
	PositionGrace time.Duration `yaml:"position-grace"`
	PaperBalance  float64       `yaml:"paper-balance" validate:"gte=0"`
}

type OptimizeConfig struct {
	Days           int     `yaml:"days" validate:"gte=1"`
	ValidationDays int     `yaml:"validation-days" validate:"gte=1"`
	Iterations     int     `yaml:"iterations" validate:"gte=1"`
	InitialPoints  int     `yaml:"initial-points" validate:"gte=1"`
	MinTrades      int     `yaml:"min-trades" validate:"gte=0"`
	Seed           int64   `yaml:"seed"`
	ParamsFile     string  `yaml:"params-file" validate:"required"`
	MirrorToRedis  bool    `yaml:"mirror-to-redis"`
	Xi             float64 `yaml:"xi"`
	Workers        int     `yaml:"workers" validate:"gte=0"`
	// Window 回测决策窗口长度，0 表示与策略 WarmUp 相同
	Window int `yaml:"window" validate:"gte=0"`
	// StrategyParams 搜索模板。同时设置 volatility_min_multiplier 和
	// volatility_max_multiplier 时波动率过滤的上下限也进入搜索空间
	StrategyParams map[string]float64 `yaml:"strategy-params"`
}

type Config struct {
	AppName     string `yaml:"app_name"`
	Listen      string `yaml:"listen"`
	Mode        string `yaml:"mode"`
	Environment string `yaml:"environment" validate:"oneof=production demo"`

	Okx       map[string]Okx      `yaml:"okx"`
	Endpoints map[string]Endpoint `yaml:"endpoints"`
	Trading   TradingConfig       `yaml:"trading"`
	Optimize  OptimizeConfig      `yaml:"optimize"`
	Db        `yaml:"database"`
	Log       LogConfig   `yaml:"log"`
	Redis     RedisConfig `yaml:"redis"`
	Kafka     KafkaConfig `yaml:"kafka"`
	Journal   string      `yaml:"journal"` // JSONL 交易流水文件
}

var AppConfig Config

// Default 未配置时使用的默认值
func Default() Config {
	return Config{
		AppName:     "tradectl",
		Listen:      ":12180",
		Mode:        "release",
		Environment: EnvDemo,
		Okx:         map[string]Okx{},
		Endpoints: map[string]Endpoint{
			EnvProduction: {Rest: "https://www.okx.com", Websocket: "wss://ws.okx.com:8443/ws/v5/business"},
			EnvDemo:       {Rest: "https://www.okx.com", Websocket: "wss://wspap.okx.com:8443/ws/v5/business", Simulated: true},
		},
		Trading: TradingConfig{
			Symbol:              "BTC-USDT-SWAP",
			Timeframe:           "5m",
			Leverage:            1,
			MgnMode:             "cross",
			PositionSizePercent: 10,
			MinOrderSize:        0.001,
			QtyStep:             0.001,
			BackfillDays:        3,
			CallTimeout:         10 * time.Second,
			PositionGrace:       5 * time.Second,
			PaperBalance:        10000,
		},
		Optimize: OptimizeConfig{
			Days:           90,
			ValidationDays: 30,
			Iterations:     50,
			InitialPoints:  10,
			MinTrades:      5,
			Seed:           42,
			ParamsFile:     "optimized_params.json",
			Xi:             0.01,
		},
		Log: LogConfig{
			Level:      "info",
			FileName:   "logs/trading.log",
			TimeFormat: "2006-01-02 15:04:05.000",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Console:    true,
		},
		Journal: "logs/trades.jsonl",
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errs.Configuration("read config", fmt.Errorf("Read config file error %w", err))
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, errs.Configuration("read config", fmt.Errorf("Unmarshal config yaml error: %w", err))
			}
		}
	}
	applyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return &cfg, nil
}

// applyEnv 环境变量优先于配置文件
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("TRADECTL_ENV"); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	env := cfg.Environment
	if cfg.Okx == nil {
		cfg.Okx = map[string]Okx{}
	}
	cred := cfg.Okx[env]
	prefix := "OKX_" + strings.ToUpper(env) + "_"
	if v := getenv(prefix + "API_KEY"); v != "" {
		cred.ApiKey = v
	}
	if v := getenv(prefix + "SECRET_KEY"); v != "" {
		cred.SecretKey = v
	}
	if v := getenv(prefix + "PASSPHRASE"); v != "" {
		cred.Password = v
	}
	cfg.Okx[env] = cred

	if v := getenv("POSITION_SIZE_PERCENT"); v != "" {
		cfg.Trading.PositionSizePercent = cast.ToFloat64(v)
	}
	if v := getenv("MAX_LEVERAGE"); v != "" {
		cfg.Trading.Leverage = cast.ToInt(v)
	}
	if v := getenv("OPTIMIZATION_DAYS"); v != "" {
		cfg.Optimize.Days = cast.ToInt(v)
	}
	if v := getenv("OPTIMIZATION_N_ITER"); v != "" {
		cfg.Optimize.Iterations = cast.ToInt(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}

var validate = validator.New()

// Validate 校验所有字段，一次性返回全部错误
func (c *Config) Validate() error {
	var err error
	if verr := validate.Struct(c); verr != nil {
		var ve validator.ValidationErrors
		if errors.As(verr, &ve) {
			for _, fe := range ve {
				err = multierr.Append(err, fmt.Errorf("%s: failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			err = multierr.Append(err, verr)
		}
	}
	ep, ok := c.Endpoints[c.Environment]
	if !ok {
		err = multierr.Append(err, fmt.Errorf("no endpoint configured for environment %q", c.Environment))
	} else if verr := validate.Struct(ep); verr != nil {
		err = multierr.Append(err, fmt.Errorf("endpoint %q: %w", c.Environment, verr))
	}
	if c.Optimize.InitialPoints > c.Optimize.Iterations {
		err = multierr.Append(err, fmt.Errorf("optimize.initial-points (%d) exceeds optimize.iterations (%d)",
			c.Optimize.InitialPoints, c.Optimize.Iterations))
	}
	if err != nil {
		return errs.Configuration("validate config", err)
	}
	return nil
}

// Credentials 当前环境的密钥，缺失时返回带提示的认证错误
func (c *Config) Credentials() (Okx, error) {
	cred := c.Okx[c.Environment]
	prefix := "OKX_" + strings.ToUpper(c.Environment) + "_"
	var missing []string
	if cred.ApiKey == "" {
		missing = append(missing, prefix+"API_KEY")
	}
	if cred.SecretKey == "" {
		missing = append(missing, prefix+"SECRET_KEY")
	}
	if cred.Password == "" {
		missing = append(missing, prefix+"PASSPHRASE")
	}
	if len(missing) > 0 {
		return cred, errs.Authentication("load credentials",
			fmt.Sprintf("set %s or okx.%s in the config file", strings.Join(missing, ", "), c.Environment),
			fmt.Errorf("credentials for environment %q are incomplete", c.Environment))
	}
	return cred, nil
}

func (c *Config) Endpoint() Endpoint {
	return c.Endpoints[c.Environment]
}
