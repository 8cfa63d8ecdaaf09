package app

import (
	"context"
	"strings"

	"tradectl/conf"
	"tradectl/internal/dao"
	"tradectl/internal/exchange/okx"
	"tradectl/internal/journal"
	"tradectl/internal/model"
	"tradectl/internal/store"
	"tradectl/pkg/cache"
	"tradectl/pkg/db"
	"tradectl/pkg/kafka"
	"tradectl/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// App 进程级依赖，可选组件未配置时为 nil
type App struct {
	cfg *conf.Config

	db       *gorm.DB
	redis    *redis.Client
	producer kafka.ProducerService

	opened  bool
	closers []func() error
}

func New(cfg *conf.Config) *App {
	return &App{cfg: cfg}
}

// Open 按配置连接 MySQL、Redis、Kafka；连接失败只降级，不影响交易。
// 各模式在参数和密钥检查通过之后才调用，重复调用无副作用
func (a *App) Open(ctx context.Context) {
	if a.opened {
		return
	}
	a.opened = true
	if a.cfg.Db.Host != "" {
		d := a.cfg.Db
		gdb, err := db.Init(db.NewConfig(d.Username, d.Password, d.Host, d.Port, d.DbName),
			&model.OrderRecord{}, &model.OptimizationRun{})
		if err != nil {
			logger.Warnf("数据库不可用，订单与优化记录不落库: %v", err)
		} else {
			a.db = gdb
			a.closers = append(a.closers, func() error {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			})
		}
	}

	if a.cfg.Redis.Addr != "" {
		client, err := cache.InitRedis(ctx, a.cfg.Redis)
		if err != nil {
			logger.Warnf("redis 不可用，参数不做镜像: %v", err)
		} else {
			a.redis = client
			a.closers = append(a.closers, client.Close)
		}
	}

	if a.cfg.Kafka.Broker != "" && a.cfg.Kafka.Topic != "" {
		a.producer = kafka.NewKafkaProducer(a.cfg.Kafka.Broker, a.cfg.Kafka.Topic)
		a.closers = append(a.closers, func() error {
			a.producer.Close()
			return nil
		})
	}
}

// Close 逆序关闭，汇总所有错误
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

// Journal 交易流水：本地 JSONL 文件，可选 Kafka 与数据库
func (a *App) Journal() journal.Sink {
	var sinks journal.Fanout
	if a.cfg.Journal != "" {
		fs := journal.NewFileSink(a.cfg.Journal)
		a.closers = append(a.closers, fs.Close)
		sinks = append(sinks, fs)
	}
	if a.producer != nil {
		sinks = append(sinks, journal.NewKafkaSink(a.producer))
	}
	if a.db != nil {
		sinks = append(sinks, journal.NewDBSink(dao.NewOrderDao(a.db)))
	}
	if len(sinks) == 0 {
		return journal.Nop{}
	}
	return sinks
}

func (a *App) ParamStore() *store.FileStore {
	return store.NewFileStore(a.cfg.Optimize.ParamsFile)
}

// PublicClient 只访问公开接口（K线、合约规格），不需要密钥
func (a *App) PublicClient() (*okx.Client, error) {
	ep := a.cfg.Endpoint()
	return okx.NewClient(okx.Config{
		Endpoint:  ep.Rest,
		Simulated: ep.Simulated,
		MgnMode:   a.cfg.Trading.MgnMode,
		Timeout:   a.cfg.Trading.CallTimeout,
	})
}

// PrivateClient 需要当前环境的完整密钥
func (a *App) PrivateClient() (*okx.Client, error) {
	cred, err := a.cfg.Credentials()
	if err != nil {
		return nil, err
	}
	ep := a.cfg.Endpoint()
	prefix := "OKX_" + strings.ToUpper(a.cfg.Environment) + "_"
	return okx.NewClient(okx.Config{
		ApiKey:         cred.ApiKey,
		SecretKey:      cred.SecretKey,
		Passphrase:     cred.Password,
		Endpoint:       ep.Rest,
		Simulated:      ep.Simulated,
		MgnMode:        a.cfg.Trading.MgnMode,
		Timeout:        a.cfg.Trading.CallTimeout,
		CredentialHint: "check " + prefix + "API_KEY, " + prefix + "SECRET_KEY and " + prefix + "PASSPHRASE",
	})
}
