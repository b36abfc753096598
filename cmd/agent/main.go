package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gqurishi/POS-in-NET-sub004/internal/ack"
	"github.com/gqurishi/POS-in-NET-sub004/internal/cloudapi"
	"github.com/gqurishi/POS-in-NET-sub004/internal/dispatch"
	"github.com/gqurishi/POS-in-NET-sub004/internal/entity"
	"github.com/gqurishi/POS-in-NET-sub004/internal/events"
	"github.com/gqurishi/POS-in-NET-sub004/internal/ingest"
	"github.com/gqurishi/POS-in-NET-sub004/internal/outbox"
	"github.com/gqurishi/POS-in-NET-sub004/internal/pollfetch"
	"github.com/gqurishi/POS-in-NET-sub004/internal/printer"
	"github.com/gqurishi/POS-in-NET-sub004/internal/realtime"
	"github.com/gqurishi/POS-in-NET-sub004/internal/server"
	"github.com/gqurishi/POS-in-NET-sub004/internal/worker"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/config"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/infra/mysql"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/infra/redis"
	"github.com/gqurishi/POS-in-NET-sub004/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/agent.yaml", "配置文件路径")
)

func main() {
	flag.Parse()

	// 1. 初始化日志
	log.Println("========================================")
	log.Println("  POS Agent Starting...")
	log.Println("========================================")

	// 2. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	log.Printf("Config loaded: %s, env: %s, device: %s\n", cfg.App.Name, cfg.App.Env, cfg.App.DeviceID)

	// 3. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// 4. 初始化 MySQL 并同步打印机注册表
	db, err := mysql.Open(cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to mysql: %v", err)
	}
	defer mysql.Close(db)

	if err := mysql.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	ctx := context.Background()

	orderDAO := mysql.NewOrderDAO(db)
	jobDAO := mysql.NewPrintJobDAO(db)
	printerDAO := mysql.NewPrinterDAO(db)
	ackDAO := mysql.NewAckDAO(db)
	outboxDAO := mysql.NewOutboxDAO(db)

	if err := printerDAO.Sync(ctx, printersFromConfig(cfg.Printers)); err != nil {
		log.Fatalf("Failed to sync printer registry: %v", err)
	}

	// 5. 初始化 Redis（可选，仅发布状态事件）
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Redis.Addr != "" {
		pubsub, err := redis.NewPubSub(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, state events disabled: %v\n", err)
		} else {
			publisher = pubsub
		}
	}

	// 6. 组装组件
	bus := events.NewBus()
	transport := printer.NewTCPTransport()
	client := cloudapi.NewClient(cfg.Cloud, cfg.App.DeviceID, zapLogger)

	coordinator := ingest.NewCoordinator(orderDAO, jobDAO, printerDAO, cfg.App.DeviceID, cfg.Dispatch.MaxRetries, zapLogger)
	queue := outbox.NewQueue(outboxDAO, cfg.Outbox.MaxRetries, zapLogger)

	mgr := worker.NewManagerInstance(zapLogger)

	mgr.Register(
		dispatch.NewDispatcher(jobDAO, printerDAO, ackDAO, transport, bus, cfg.App.DeviceID,
			cfg.Dispatch.Tick, cfg.Dispatch.ClaimLimit, cfg.Dispatch.StaleAfter, zapLogger),
		printer.NewMonitor(printerDAO, transport, bus, publisher, cfg.Health.Interval, cfg.Health.ProbeTimeout, zapLogger),
	)

	var listener *realtime.Listener
	if cfg.Cloud.Configured() {
		listener = realtime.NewListener(cfg.Cloud, cfg.App.DeviceID, coordinator, bus, publisher, zapLogger)
		mgr.Register(
			listener,
			ingest.NewCatchUp(bus, client, coordinator, zapLogger),
			ack.NewService(ackDAO, client, queue, publisher, cfg.App.DeviceID, cfg.Ack.Interval, zapLogger),
			outbox.NewFlusher(outboxDAO, client, cfg.Outbox.Interval, cfg.Outbox.Batch, zapLogger),
		)
		if cfg.Poller.Enabled {
			mgr.Register(pollfetch.NewFetcher(client, coordinator, cfg.Poller.Interval, zapLogger))
		}
	} else {
		log.Println("Cloud platform not configured, running in local-only mode")
	}

	if cfg.Server.Enabled {
		handler := server.NewHandler(printerDAO, orderDAO, jobDAO, ackDAO, outboxDAO, coordinator, zapLogger)
		if listener != nil {
			handler.ConnState = listener
		}
		engine := server.SetupRoutes(handler, cfg.App.Name)
		mgr.Register(server.NewServer(engine, cfg.Server.Listen, zapLogger))
	}

	// 7. 启动 Manager（goroutine）
	go mgr.Start()

	log.Println("Agent started. Press Ctrl+C to shutdown.")

	// 8. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Println("========================================")
	log.Printf("  Received signal: %v\n", sig)
	log.Println("  Shutting down Agent...")
	log.Println("========================================")

	// 9. 优雅关闭 Manager
	mgr.Shutdown()

	fmt.Println("========================================")
	fmt.Println("  Agent exited gracefully")
	fmt.Println("========================================")
}

// printersFromConfig 把配置文件声明的打印机转换为注册表记录
func printersFromConfig(printers []config.PrinterConfig) []entity.NetworkPrinter {
	out := make([]entity.NetworkPrinter, 0, len(printers))
	for _, p := range printers {
		brand := p.Brand
		if brand == "" {
			brand = entity.PrinterBrandGeneric
		}
		typ := p.Type
		if typ == "" {
			typ = entity.PrinterTypeReceipt
		}
		out = append(out, entity.NetworkPrinter{
			ID:         p.ID,
			Name:       p.Name,
			Address:    p.Address,
			Port:       p.Port,
			Brand:      brand,
			PaperWidth: p.PaperWidth,
			Type:       typ,
			PrintGroup: p.PrintGroup,
		})
	}
	return out
}
