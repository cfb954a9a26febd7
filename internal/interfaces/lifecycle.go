package interfaces

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenDriveEmulator/internal/config"
	"github.com/KevinKickass/OpenDriveEmulator/internal/emulator"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State       string         `json:"state"`
	SessionID   string         `json:"session_id"`
	LoopState   string         `json:"loop_state"`
	Mode        string         `json:"mode"`
	BindAddress string         `json:"bind_address"`
	StartedAt   time.Time      `json:"started_at"`
	Uptime      string         `json:"uptime"`
	Stats       emulator.Stats `json:"stats"`
	Subnodes    []SubnodeInfo  `json:"subnodes"`
	Defaults    int            `json:"defaults"`
	WSClients   int            `json:"ws_clients"`
}

type SubnodeInfo struct {
	Subnode        uint8  `json:"subnode"`
	ProductCode    uint32 `json:"product_code"`
	RevisionNumber uint32 `json:"revision_number"`
	Registers      int    `json:"registers"`
}

type LifecycleManager interface {
	Config() *config.Config
	Engine() *emulator.Engine
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
