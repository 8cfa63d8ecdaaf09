package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tradectl/cmd/app"
	"tradectl/conf"
	"tradectl/internal/errs"
	"tradectl/pkg/logger"
)

/*
优化参数（默认 90 天历史，50 次评估），结果写入 optimized_params.json：

	go run ./cmd -config conf/config.yaml -optimize -strategy ifr

用最近 30 天数据验证已保存的参数：

	go run ./cmd -config conf/config.yaml -validate

模拟盘 / 实盘：

	go run ./cmd -config conf/config.yaml -trade -paper
	TRADECTL_ENV=production go run ./cmd -config conf/config.yaml -trade
*/

func main() {
	var (
		configPath = flag.String("config", "conf/config.yaml", "config file path")
		doOptimize = flag.Bool("optimize", false, "optimize strategy and trailing stop parameters")
		doValidate = flag.Bool("validate", false, "backtest the saved parameters on recent data")
		doTrade    = flag.Bool("trade", false, "run the live decision loop")
		paper      = flag.Bool("paper", false, "with -trade: use the in-memory paper venue")
		strategy   = flag.String("strategy", "", "strategy to optimize (default: saved strategy_name or ifr)")
	)
	flag.Parse()

	modes := 0
	for _, on := range []bool{*doOptimize, *doValidate, *doTrade} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -optimize, -validate, -trade is required")
		flag.Usage()
		os.Exit(2)
	}

	// 加载配置文件
	cfg, err := conf.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(&cfg.Log, cfg.AppName)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 可选组件（MySQL、Redis、Kafka）由各模式在参数检查之后连接
	a := app.New(cfg)

	switch {
	case *doOptimize:
		_, err = a.Optimize(ctx, *strategy)
	case *doValidate:
		_, err = a.Validate(ctx)
	case *doTrade:
		err = a.Trade(ctx, *paper)
	}

	if cerr := a.Close(); cerr != nil {
		logger.Warnf("关闭资源出错: %v", cerr)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errs.Is(err, errs.KindAuthentication):
		logger.Errorf("认证失败: %v", err)
		if hint := errs.Hint(err); hint != "" {
			logger.Errorf("提示: %s", hint)
		}
		return 1
	case errs.Is(err, errs.KindConfiguration):
		logger.Errorf("配置错误: %v", err)
		return 1
	default:
		logger.Errorf("运行失败: %v", err)
		return 1
	}
}
