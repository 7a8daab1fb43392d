package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"compow-alarm/internal/channel"
	"compow-alarm/internal/config"
	"compow-alarm/internal/httpapi"
	"compow-alarm/internal/logger"
	"compow-alarm/internal/models"
	"compow-alarm/internal/repository"
	"compow-alarm/internal/service"
	"compow-alarm/internal/state"
	"compow-alarm/internal/storage"
	"compow-alarm/internal/trigger"
)

func main() {
	// 1. 加载配置（.env 可选）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "compow-alarm")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 本地存储
	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open database",
			zap.String("path", cfg.Database.Path),
			zap.Error(err),
		)
	}
	defer storage.Close(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
	}

	// 4. 仓库与状态层
	contactRepo := repository.NewContactRepository(db, log)
	userRepo := repository.NewUserRepository(db, log)
	alertLogRepo := repository.NewAlertLogRepository(db, log)
	stateManager := state.NewStateManager(cfg, redisClient, log)

	// 5. 通道：MQTT 实时 + 短信回退
	realtime := channel.NewRealtimeChannel(cfg, log)
	if err := realtime.Connect(); err != nil {
		// 实时通道不可用不阻止启动，报警会直接走短信回退
		log.Warn("Realtime channel unavailable at startup",
			zap.Error(err),
		)
	}
	defer realtime.Close()

	var smsSender channel.SMSSender
	if cfg.Alarm.SMSGatewayURL != "" {
		smsSender = channel.NewHTTPGateway(cfg.Alarm.SMSGatewayURL, log)
	} else {
		log.Warn("SMS gateway not configured, SMS fallback will only be logged")
		smsSender = channel.NewLogSMSSender(log)
	}
	smsChannel := channel.NewSMSChannel(smsSender, cfg.Alarm.SMSSegmentLength, log)

	// 6. 编排器
	notifier := service.NewLogNotifier(log)
	orchestrator := service.NewAlarmOrchestrator(
		cfg,
		log,
		service.NewRecipientResolver(contactRepo, stateManager, log),
		service.NewLocator(nil, stateManager, log),
		userRepo,
		alertLogRepo,
		stateManager,
		realtime,
		smsChannel,
		notifier,
		service.NopVibrator{},
	)

	// 7. 启动恢复：上次进程未解除的报警
	if err := orchestrator.RecoverFromRestart(ctx); err != nil {
		log.Error("Boot recovery failed", zap.Error(err))
	}

	// 8. 加入个人房间并转发收到的报警
	realtime.SetAlertHandler(func(p *models.AlertPayload) {
		title := "🚨 Emergency alert from " + p.FromUserName
		severity := service.SeverityError
		if p.Type == models.PayloadTypeSafe {
			title = "✅ " + p.FromUserName + " is safe"
			severity = service.SeverityInfo
		}
		notifier.Notify(severity, title, p.Message)
	})

	if user, err := userRepo.GetCurrentUser(ctx); err != nil {
		log.Warn("Failed to load user profile", zap.Error(err))
	} else if user != nil {
		realtime.JoinUserRoom(user.UserID, user.FullName)
	}

	// 9. 双音量键触发器 + HTTP 控制面
	detector := trigger.NewDoublePressDetector(
		time.Duration(cfg.Alarm.DoublePressMS)*time.Millisecond,
		func() {
			if err := orchestrator.TriggerAlarm(context.Background(), ""); err != nil {
				log.Error("Trigger from key detector failed", zap.Error(err))
			}
		},
		log,
	)

	apiServer := httpapi.NewServer(log, orchestrator, alertLogRepo, contactRepo, userRepo, stateManager, detector)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: apiServer.Handler(),
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("HTTP control surface listening",
			zap.String("addr", cfg.HTTP.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// 10. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}

	log.Info("Alarm client stopped")
}
