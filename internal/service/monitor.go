package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"vitalink-monitor/internal/cache"
	"vitalink-monitor/internal/config"
	"vitalink-monitor/internal/consumer"
	"vitalink-monitor/internal/database"
	"vitalink-monitor/internal/httpapi"
	"vitalink-monitor/internal/liveness"
	"vitalink-monitor/internal/models"
	"vitalink-monitor/internal/mqtt"
	"vitalink-monitor/internal/profile"
	redisc "vitalink-monitor/internal/redis"
	"vitalink-monitor/internal/repository"
	"vitalink-monitor/internal/state"
)

// MonitorService 遥测监护服务
type MonitorService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *goredis.Client
	mqttClient *mqtt.Client

	table    *state.Table
	tracker  *liveness.Tracker
	snapshot *cache.SnapshotCache
	profiles *profile.Cache
	repo     *repository.AlertEventsRepository
	consumer *consumer.TelemetryConsumer

	httpServer *http.Server

	alertCh     chan *models.AlertEvent
	alertMu     sync.RWMutex
	alertClosed bool
	writerWG    sync.WaitGroup
}

// NewMonitorService 创建遥测监护服务并完成所有组件装配
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	ctx := context.Background()

	// 初始化数据库
	db, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := repository.EnsureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	// 初始化Redis
	redisClient, err := redisc.Connect(ctx, &cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	// 初始化MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	kv := cache.NewRedisKVStore(redisClient)

	var snapshot *cache.SnapshotCache
	if cfg.Monitor.Snapshot.Enabled {
		snapshot = cache.NewSnapshotCache(
			kv,
			cfg.Monitor.Snapshot.KeyPrefix,
			cfg.Monitor.Snapshot.Suffix,
			cfg.Monitor.Snapshot.TTL,
			logger,
		)
	}

	profiles := profile.NewCache(kv, cfg.Monitor.Profile.KeyPrefix, logger)
	repo := repository.NewAlertEventsRepository(db, cfg.Monitor.HistoryCap, logger)
	table := state.NewTable()

	s := &MonitorService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		table:      table,
		snapshot:   snapshot,
		profiles:   profiles,
		repo:       repo,
		alertCh:    make(chan *models.AlertEvent, cfg.Monitor.AlertBuffer),
	}

	// 静默降级：计时器触发且没有更新的读数时才生效
	s.tracker = liveness.NewTracker(cfg.Monitor.LivenessWindow, s.onSubjectSilent, logger)

	s.consumer = consumer.NewTelemetryConsumer(table, s.tracker, profiles, snapshot, s, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterSubjectRoutes(httpapi.NewSubjectHandler(table, repo, s, cfg.Monitor.DefaultPageSize, logger))
	s.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Start 启动服务
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service components")

	// 启动报警落库协程
	s.writerWG.Add(1)
	go s.alertWriter()

	// 订阅遥测主题
	if err := s.mqttClient.Subscribe(s.config.Monitor.TopicFilter, s.config.MQTT.QoS, s.consumer.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", err)
	}

	// 启动HTTP服务
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.logger.Info("Monitor service started successfully",
		zap.String("topic_filter", s.config.Monitor.TopicFilter),
		zap.Duration("liveness_window", s.config.Monitor.LivenessWindow),
	)
	return nil
}

// Stop 停止服务（先停进水口，再排干，最后关闭连接）
func (s *MonitorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitor service")

	// 停止接收新消息
	if err := s.mqttClient.Unsubscribe(s.config.Monitor.TopicFilter); err != nil {
		s.logger.Error("Error unsubscribing from telemetry topic", zap.Error(err))
	}

	// 停止所有静默计时器
	s.tracker.StopAll()

	// 关闭报警队列并等待落库完成
	s.closeAlertQueue()
	s.writerWG.Wait()

	// 关闭HTTP服务
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down HTTP server", zap.Error(err))
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		s.redis.Close()
	}

	// 关闭数据库
	if s.db != nil {
		s.db.Close()
	}

	s.logger.Info("Monitor service stopped")
	return nil
}

// Submit 实现 consumer.AlertSink：报警事件进入异步落库队列
// 队列满时丢弃并记录，不阻塞遥测消费。
// 读锁下判断队列是否已关闭：paho 的消息回调跑在自己的协程上，
// Unsubscribe 不会等待在途回调结束，停机后到达的事件必须安全丢弃
func (s *MonitorService) Submit(event *models.AlertEvent) {
	s.alertMu.RLock()
	defer s.alertMu.RUnlock()

	if s.alertClosed {
		s.logger.Warn("Alert queue closed, dropping alert event",
			zap.String("subject_id", event.SubjectID),
			zap.String("event_id", event.EventID),
		)
		return
	}

	select {
	case s.alertCh <- event:
	default:
		s.logger.Error("Alert queue full, dropping alert event",
			zap.String("subject_id", event.SubjectID),
			zap.String("event_id", event.EventID),
		)
	}
}

// closeAlertQueue 关闭报警队列；写锁保证没有生产者正停留在发送点
func (s *MonitorService) closeAlertQueue() {
	s.alertMu.Lock()
	defer s.alertMu.Unlock()

	if s.alertClosed {
		return
	}
	s.alertClosed = true
	close(s.alertCh)
}

// alertWriter 消费报警队列并持久化
func (s *MonitorService) alertWriter() {
	defer s.writerWG.Done()

	for event := range s.alertCh {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.repo.AppendAlertEvent(ctx, event)
		cancel()

		if err != nil {
			// 持久化失败不影响实时状态，记录后继续
			s.logger.Error("Failed to persist alert event",
				zap.String("subject_id", event.SubjectID),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}
}

// onSubjectSilent 静默窗口到期回调
func (s *MonitorService) onSubjectSilent(subjectID string, firedAt time.Time) {
	if !s.table.MarkNoData(subjectID, firedAt) {
		// 计时器触发和新读数竞争时读数获胜
		s.logger.Debug("Silence expiry superseded by newer reading",
			zap.String("subject_id", subjectID),
		)
		return
	}

	s.logger.Info("Subject degraded to no-data after silence window",
		zap.String("subject_id", subjectID),
		zap.Duration("window", s.config.Monitor.LivenessWindow),
	)

	if s.snapshot != nil {
		if entry, ok := s.table.Get(subjectID); ok {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.snapshot.UpdateSnapshot(ctx, &entry); err != nil {
				s.logger.Warn("Failed to mirror no-data snapshot",
					zap.String("subject_id", subjectID),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// RemoveSubject 将对象移出监控：停计时器、清状态表、删快照
// 报警历史保留在数据库中
func (s *MonitorService) RemoveSubject(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	s.tracker.Remove(subjectID)
	s.table.Remove(subjectID)
	s.profiles.Forget(subjectID)

	if s.snapshot != nil {
		if err := s.snapshot.DeleteSnapshot(ctx, subjectID); err != nil {
			s.logger.Warn("Failed to delete subject snapshot",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Subject removed from monitoring",
		zap.String("subject_id", subjectID),
	)
	return nil
}

// PublishDeviceSettings 向对象的遥测主题下发设备配置
func (s *MonitorService) PublishDeviceSettings(subjectID string, settings json.RawMessage) error {
	if subjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	topic := s.config.Monitor.TopicPrefix + subjectID
	if err := s.mqttClient.Publish(topic, s.config.MQTT.QoS, false, settings); err != nil {
		return fmt.Errorf("failed to publish device settings: %w", err)
	}

	s.logger.Info("Device settings published",
		zap.String("subject_id", subjectID),
		zap.String("topic", topic),
	)
	return nil
}
