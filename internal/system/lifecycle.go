package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/api/rest"
	"github.com/KevinKickass/OpenDriveEmulator/internal/api/websocket"
	"github.com/KevinKickass/OpenDriveEmulator/internal/config"
	"github.com/KevinKickass/OpenDriveEmulator/internal/devices"
	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
	"github.com/KevinKickass/OpenDriveEmulator/internal/interfaces"
	"github.com/KevinKickass/OpenDriveEmulator/internal/mcb"
	"github.com/KevinKickass/OpenDriveEmulator/internal/protolog"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config    *config.Config
	logger    *zap.Logger
	sessionID string

	composer *devices.Composer
	set      *devices.Set
	engine   *emulator.Engine
	mode     mcb.Mode

	phy     *mcb.UDPInterface
	loop    *emulator.Loop
	capture *protolog.FileLogger

	wsHub      *websocket.Hub
	restServer *rest.Server

	cancel   context.CancelFunc
	loopDone chan struct{}
	hubDone  chan struct{}

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time
	lastError    string

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	loader, err := devices.NewLoader(cfg.Dictionaries.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create description loader: %w", err)
	}

	return &LifecycleManager{
		config:       cfg,
		logger:       logger,
		sessionID:    uuid.NewString(),
		composer:     devices.NewComposer(loader, logger.Named("devices")),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start loads the dictionaries and brings up every service. On failure the
// system is left in ERROR with everything already opened released.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting drive emulator", zap.String("session_id", lm.sessionID))

	if state := lm.State(); state != StateInitializing {
		return fmt.Errorf("cannot start from state %s", state)
	}

	if err := lm.start(); err != nil {
		lm.release()
		if lm.capture != nil {
			lm.capture.Close()
		}
		lm.setError(err)
		return err
	}

	if err := lm.setState(StateRunning); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("bind_address", lm.phy.LocalAddr().String()),
		zap.String("mode", lm.mode.String()),
	}
	if lm.restServer != nil {
		fields = append(fields, zap.String("http_address", lm.restServer.Addr().String()))
	}
	lm.logger.Info("System started successfully", fields...)

	return nil
}

func (lm *LifecycleManager) start() error {
	cfg := lm.config

	mode, err := mcb.ParseMode(cfg.Emulator.Mode)
	if err != nil {
		return err
	}
	lm.mode = mode

	set, err := lm.composer.Load(devices.Sources{
		Subnode0: cfg.Dictionaries.Subnode0,
		Subnode1: cfg.Dictionaries.Subnode1,
		Defaults: cfg.Dictionaries.Defaults,
	})
	if err != nil {
		return fmt.Errorf("failed to load dictionaries: %w", err)
	}
	lm.set = set
	lm.engine = emulator.NewEngine(set.Subnodes[0], set.Subnodes[1], set.Defaults, lm.logger.Named("engine"))

	var recorder protolog.Logger = protolog.NoopLogger{}
	if cfg.ProtocolLog.Path != "" {
		capture, err := protolog.NewFileLogger(cfg.ProtocolLog.Path)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		lm.capture = capture
		recorder = capture
		lm.logger.Info("Protocol capture enabled", zap.String("path", cfg.ProtocolLog.Path))
	}

	phy, err := mcb.ListenUDP(cfg.Emulator.BindAddress, cfg.Emulator.ListenTimeout)
	if err != nil {
		return err
	}
	lm.phy = phy

	lm.wsHub = websocket.NewHub(lm.logger.Named("websocket"))
	lm.wsHub.SetStatusProvider(lm)

	node := mcb.NewNode(phy, mode, lm.logger.Named("mcb"))
	lm.loop = emulator.NewLoop(node, lm.engine, lm.logger.Named("loop"),
		protolog.NewRecorder(recorder, lm.sessionID),
		lm.wsHub,
	)

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel
	lm.hubDone = make(chan struct{})
	lm.loopDone = make(chan struct{})

	go func() {
		defer close(lm.hubDone)
		lm.wsHub.Run(ctx)
	}()
	go func() {
		defer close(lm.loopDone)
		if err := lm.loop.Run(ctx); err != nil {
			lm.logger.Error("Request loop failed", zap.Error(err))
		}
	}()

	if cfg.API.Enabled {
		lm.restServer = rest.NewServer(cfg, lm, lm.logger.Named("rest"), lm.wsHub)
		if err := lm.restServer.Start(); err != nil {
			lm.restServer = nil
			return fmt.Errorf("failed to start REST API: %w", err)
		}
	}

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()

	return nil
}

// Shutdown stops the loop, then the API, then closes the capture file.
// Only the first call has an effect.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		if err := lm.setState(StateStopping); err != nil {
			lm.logger.Warn("Unexpected state on shutdown", zap.Error(err))
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		if err := lm.setState(StateStopped); err != nil {
			lm.logger.Warn("Unexpected state on shutdown", zap.Error(err))
		}

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	if lm.restServer != nil {
		if err := lm.restServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
	}

	lm.release()

	for name, done := range map[string]chan struct{}{"request loop": lm.loopDone, "websocket hub": lm.hubDone} {
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("%s did not stop: %w", name, ctx.Err()))
		}
	}

	if lm.capture != nil {
		if err := lm.capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("protocol log close failed: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

// release cancels the background goroutines and closes the socket, which
// unblocks a pending read.
func (lm *LifecycleManager) release() {
	if lm.cancel != nil {
		lm.cancel()
	}
	if lm.phy != nil {
		if err := lm.phy.Close(); err != nil {
			lm.logger.Debug("Socket close", zap.Error(err))
		}
	}
}

func (lm *LifecycleManager) setState(state SystemState) error {
	lm.stateMu.Lock()
	previous := lm.currentState
	if err := ValidateTransition(previous, state); err != nil {
		lm.stateMu.Unlock()
		return err
	}
	lm.currentState = state
	lm.stateMu.Unlock()

	lm.logger.Info("System state changed",
		zap.Stringer("from", previous),
		zap.Stringer("to", state))
	if lm.wsHub != nil {
		lm.wsHub.Broadcast(websocket.NewSystemStateMessage(state.String(), previous.String()))
	}
	return nil
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	lm.lastError = err.Error()
	lm.stateMu.Unlock()

	if terr := lm.setState(StateError); terr != nil {
		lm.logger.Warn("Cannot enter error state", zap.Error(terr))
	}
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// LastError is the message of the error that put the system into ERROR.
func (lm *LifecycleManager) LastError() string {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.lastError
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State:       lm.currentState.String(),
		SessionID:   lm.sessionID,
		Mode:        lm.mode.String(),
		BindAddress: lm.config.Emulator.BindAddress,
		StartedAt:   lm.startedAt,
	}
	if !lm.startedAt.IsZero() {
		status.Uptime = time.Since(lm.startedAt).Round(time.Second).String()
	}
	lm.stateMu.RUnlock()

	if addr := lm.UDPAddr(); addr != nil {
		status.BindAddress = addr.String()
	}
	if lm.loop != nil {
		status.LoopState = lm.loop.State().String()
		status.Stats = lm.loop.Stats()
	}
	if lm.set != nil {
		for i, dict := range lm.set.Subnodes {
			status.Subnodes = append(status.Subnodes, interfaces.SubnodeInfo{
				Subnode:        uint8(i),
				ProductCode:    dict.ProductCode(),
				RevisionNumber: dict.RevisionNumber(),
				Registers:      dict.Len(),
			})
		}
		status.Defaults = lm.set.Defaults.Len()
	}
	if lm.wsHub != nil {
		status.WSClients = lm.wsHub.GetClientCount()
	}

	return status
}

// GetStatus feeds the websocket hub.
func (lm *LifecycleManager) GetStatus() any {
	return lm.GetCurrentStatus()
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Engine() *emulator.Engine {
	return lm.engine
}

func (lm *LifecycleManager) SessionID() string {
	return lm.sessionID
}

// UDPAddr is the bound MCB address, or nil before Start.
func (lm *LifecycleManager) UDPAddr() net.Addr {
	if lm.phy == nil {
		return nil
	}
	return lm.phy.LocalAddr()
}

// HTTPAddr is the bound API address, or nil when the API is disabled.
func (lm *LifecycleManager) HTTPAddr() net.Addr {
	if lm.restServer == nil {
		return nil
	}
	return lm.restServer.Addr()
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
