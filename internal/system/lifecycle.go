package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/api/rest"
	"github.com/KevinKickass/OpenInverterCore/internal/api/websocket"
	"github.com/KevinKickass/OpenInverterCore/internal/auth"
	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/interfaces"
	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/metrics"
	"github.com/KevinKickass/OpenInverterCore/internal/modbus"
	"github.com/KevinKickass/OpenInverterCore/internal/mqtt"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
	"github.com/KevinKickass/OpenInverterCore/internal/storage"
)

type Option func(*LifecycleManager)

// WithTransport replaces the transport built from the inverter config.
func WithTransport(t modbus.Transport) Option {
	return func(lm *LifecycleManager) { lm.transport = t }
}

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	registry  *sensors.Registry
	selected  []sensors.Sensor
	transport modbus.Transport
	inverter  *inverter.Inverter
	poller    *inverter.Poller
	metrics   *metrics.Metrics

	db        *storage.PostgresClient
	store     storage.Store
	recorder  *storage.Recorder
	broker    *mqtt.PahoBroker
	publisher *mqtt.Publisher

	wsHub       *websocket.Hub
	authService *auth.AuthService
	restServer  *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

// NewLifecycleManager builds the sensor registry and the inverter. Nothing
// touches the network until Start.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger, opts ...Option) (*LifecycleManager, error) {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lm)
	}

	registry, err := BuildRegistry(cfg.Profiles, logger)
	if err != nil {
		return nil, err
	}
	lm.registry = registry

	selected, err := SelectSensors(registry, *cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid sensor selection: %w", err)
	}
	lm.selected = selected

	if lm.transport == nil {
		t, err := modbus.NewTransport(modbus.Options{
			Kind:     cfg.Inverter.Transport,
			Host:     cfg.Inverter.Host,
			Port:     cfg.Inverter.Port,
			Device:   cfg.Inverter.Device,
			BaudRate: cfg.Inverter.BaudRate,
			UnitID:   uint8(cfg.Inverter.UnitID),
			Timeout:  cfg.Inverter.Timeout,
		})
		if err != nil {
			return nil, err
		}
		lm.transport = t
	}

	lm.inverter = inverter.New(inverter.Config{
		ID:                cfg.Inverter.ID,
		BatchSize:         cfg.Inverter.BatchSize,
		DefaultRatedPower: cfg.Inverter.DefaultRatedPower,
	}, registry, lm.transport, logger)

	lm.metrics = metrics.New(lm.inverter)
	lm.wsHub = websocket.NewHub(logger, cfg.Server.CORSOrigins...)
	lm.authService = auth.NewAuthService(cfg.Auth, logger)
	filters, err := SensorFilters(cfg.Sensors)
	if err != nil {
		return nil, fmt.Errorf("invalid sensor filter: %w", err)
	}
	lm.poller = inverter.NewPoller(lm.inverter, selected, cfg.Sensors.PollInterval, lm.pollerFailed, logger)
	if err := lm.poller.SetFilters(filters, cfg.Sensors.FilterWindow); err != nil {
		return nil, fmt.Errorf("invalid sensor filter: %w", err)
	}

	logger.Info("Sensor registry ready",
		zap.Int("sensors", registry.Len()),
		zap.Int("selected", len(selected)),
		zap.Int("polled", len(lm.poller.Sensors())),
		zap.String("model", cfg.Inverter.Model))

	return lm, nil
}

// Start connects to the inverter, reads the start-up sensors and starts
// polling, the optional integrations and the REST API.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenInverterCore", zap.String("inverter", lm.inverter.ID()))
	lm.setState(StateInitializing)

	if err := lm.inverter.Connect(ctx); err != nil {
		return lm.fail(fmt.Errorf("failed to connect to inverter: %w", err))
	}
	if err := lm.inverter.Startup(ctx, lm.selected); err != nil {
		return lm.fail(err)
	}

	lm.inverter.AddListener(lm.metrics)
	lm.inverter.AddListener(lm.wsHub)
	go lm.wsHub.Run()

	if lm.config.Database.Enabled {
		if err := lm.startStorage(ctx); err != nil {
			return lm.fail(err)
		}
	}

	if lm.config.MQTT.Enabled {
		if err := lm.startMQTT(); err != nil {
			return lm.fail(err)
		}
	}

	if err := lm.poller.Start(); err != nil {
		return lm.fail(fmt.Errorf("failed to start poller: %w", err))
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	if err := lm.restServer.Start(); err != nil {
		return lm.fail(fmt.Errorf("failed to start REST API: %w", err))
	}

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.String("serial", lm.inverter.Serial()),
		zap.Float64("rated_power", lm.inverter.RatedPower()),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("mqtt", lm.publisher != nil),
		zap.Bool("database", lm.store != nil))
	return nil
}

func (lm *LifecycleManager) startStorage(ctx context.Context) error {
	db, err := storage.NewPostgresClient(ctx, lm.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	lm.db = db
	lm.store = db
	lm.recorder = storage.NewRecorder(db, lm.inverter.ID(), lm.logger)
	lm.inverter.AddListener(lm.recorder)
	lm.logger.Info("Database connected successfully")
	return nil
}

func (lm *LifecycleManager) startMQTT() error {
	cfg := lm.config.MQTT
	broker, err := mqtt.Dial(cfg, mqtt.AvailabilityTopic(lm.inverter.ID()), lm.logger)
	if err != nil {
		return err
	}
	lm.broker = broker

	lm.publisher = mqtt.NewPublisher(mqtt.Config{
		DiscoveryPrefix:  cfg.DiscoveryPrefix,
		SensorPrefix:     cfg.SensorPrefix,
		NumberEntityMode: cfg.NumberEntityMode,
	}, broker, lm.inverter, lm.poller, lm.logger)

	if err := lm.publisher.Start(lm.selected); err != nil {
		return fmt.Errorf("failed to publish discovery: %w", err)
	}
	lm.inverter.AddListener(lm.publisher)
	return nil
}

// pollerFailed runs when the poller gives up on the inverter.
func (lm *LifecycleManager) pollerFailed(err error) {
	lm.logger.Error("Inverter unreachable, stopping", zap.Error(err))
	lm.setError(err)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lm.shutdownTimeout())
		defer cancel()
		if err := lm.Shutdown(ctx); err != nil {
			lm.logger.Error("Shutdown failed", zap.Error(err))
		}
	}()
}

// Done is closed once the system has shut down.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// Err returns the error that put the system into the ERROR state.
func (lm *LifecycleManager) Err() error {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.lastError
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		failed := lm.State() == StateError

		lm.setState(StateStopping)
		shutdownErr = lm.gracefulShutdown(ctx)

		if failed {
			lm.setState(StateError)
		} else {
			lm.setState(StateStopped)
		}
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	lm.poller.Stop()

	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
		cancel()
	}

	lm.wsHub.Stop()

	if lm.publisher != nil {
		if err := lm.publisher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt offline publish failed: %w", err))
		}
	}
	if lm.broker != nil {
		lm.broker.Close()
	}

	if lm.recorder != nil {
		lm.recorder.Close()
	}
	if lm.db != nil {
		lm.db.Close()
	}

	if err := lm.inverter.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("inverter disconnect failed: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) shutdownTimeout() time.Duration {
	if lm.config.Server.ShutdownTimeout > 0 {
		return lm.config.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	if state != lm.currentState {
		if err := ValidateTransition(lm.currentState, state); err != nil {
			lm.logger.Warn("Unexpected state transition", zap.Error(err))
		}
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("Startup failed", zap.Error(err))
	lm.setError(err)
	return err
}

func (lm *LifecycleManager) broadcastStatus() {
	if lm.wsHub == nil {
		return
	}
	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, lastErr := lm.currentState, lm.lastError
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:    state.String(),
		Model:    lm.config.Inverter.Model,
		Selected: len(lm.selected),
		MQTT:     lm.publisher != nil,
		Database: lm.store != nil,
	}
	if lm.registry != nil {
		status.SensorCount = lm.registry.Len()
	}
	if lm.inverter != nil {
		status.InverterID = lm.inverter.ID()
		status.Serial = lm.inverter.Serial()
		status.RatedPower = lm.inverter.RatedPower()
		status.Connected = lm.inverter.Connected()
		status.Stats = lm.inverter.Stats()
	}
	if lm.poller != nil {
		status.Polling = lm.poller.IsRunning()
	}
	if lastErr != nil {
		status.Error = lastErr.Error()
	}
	return status
}

func (lm *LifecycleManager) Config() *config.Config       { return lm.config }
func (lm *LifecycleManager) Inverter() *inverter.Inverter { return lm.inverter }
func (lm *LifecycleManager) Metrics() *metrics.Metrics    { return lm.metrics }
func (lm *LifecycleManager) Selected() []sensors.Sensor   { return lm.selected }

// Store returns the database store, or nil when it is disabled.
func (lm *LifecycleManager) Store() storage.Store { return lm.store }
