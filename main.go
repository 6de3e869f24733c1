package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/oar-dist/oar-dist/internal/config"
	"github.com/oar-dist/oar-dist/internal/logging"
	"github.com/oar-dist/oar-dist/internal/metrics"
	"github.com/oar-dist/oar-dist/internal/server"
	"github.com/oar-dist/oar-dist/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const metricsNamespace = "oar_dist"

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["volumes"] = config.VolumeTypes(cfg.Volumes)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 长期存储与缓存卷 → 分发服务 → Fiber server。
	app, comp, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer comp.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["volumes"] = config.VolumeTypes(cfg.Volumes)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["long_term_storage"] = cfg.Global.LongTermStoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("oar-dist", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OAR_DIST_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("OAR_DIST_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*fiber.App, *server.Components, error) {
	prom := metrics.NewProm(metricsNamespace)
	comp, err := server.Bootstrap(ctx, cfg, logger, prom)
	if err != nil {
		return nil, nil, err
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:         logger,
		Service:        comp.Service,
		Volumes:        comp.Volumes,
		MetricsHandler: prom.Handler(),
	})
	if err != nil {
		comp.Close()
		return nil, nil, err
	}
	return app, comp, nil
}

func startHTTPServer(app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
