package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"signal-bridge/internal/bridge"
	"signal-bridge/internal/broker"
	"signal-bridge/internal/queue"
	"signal-bridge/internal/risk"
)

// Mode selects the Strategy implementation.
type Mode string

const (
	ModeFile       Mode = "file"
	ModeSimulation Mode = "simulation"
	ModeMetaAPI    Mode = "metaapi"
	ModeBridge     Mode = "bridge"
)

// ResolveMode maps the configured trading mode to a Mode. metaapi without
// credentials falls back to simulation; empty or unknown values mean file.
func ResolveMode(requested string, hasRemoteCredentials bool) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(requested))); m {
	case ModeMetaAPI:
		if !hasRemoteCredentials {
			log.Println("⚠️ metaapi mode needs a broker address, token and account id, using simulation")
			return ModeSimulation
		}
		return ModeMetaAPI
	case ModeSimulation, ModeBridge, ModeFile:
		return m
	case "":
		return ModeFile
	default:
		log.Printf("⚠️ Unknown trading mode %q, using file", requested)
		return ModeFile
	}
}

// Deps carries everything the strategies may need; only the fields of the
// selected mode are used.
type Deps struct {
	Store      *queue.Store
	IDs        *queue.IDGenerator
	Risk       risk.Config
	Simulation SimulationConfig
	Remote     RemoteConfig
	Broker     broker.Client
	Bridge     *bridge.Client
}

// New builds the strategy for mode.
func New(mode Mode, d Deps) (Strategy, error) {
	switch mode {
	case ModeFile:
		if d.Store == nil {
			return nil, errors.New("file mode needs a queue store")
		}
		return NewFileStrategy(d.Store, d.IDs, d.Risk), nil
	case ModeSimulation:
		return NewSimulatedStrategy(d.Simulation, d.Risk), nil
	case ModeMetaAPI:
		if d.Broker == nil {
			return nil, errors.New("metaapi mode needs a broker client")
		}
		return NewRemoteStrategy(d.Broker, d.Remote, d.Risk), nil
	case ModeBridge:
		if d.Bridge == nil {
			return nil, errors.New("bridge mode needs a bridge client")
		}
		return NewBridgeStrategy(d.Bridge, d.Risk), nil
	}
	return nil, fmt.Errorf("unknown execution mode %q", mode)
}

// Start initializes primary. When that fails the fallback (normally the file
// strategy) is tried so signals are still queued; when both fail it returns
// nil and the caller runs parse-only. degraded is true whenever primary is
// not the active strategy.
func Start(ctx context.Context, primary, fallback Strategy) (active Strategy, degraded bool) {
	if primary != nil {
		err := primary.Initialize(ctx)
		if err == nil {
			return primary, false
		}
		if errors.Is(err, ErrConnectivity) {
			log.Printf("❌ CONNECTIVITY: %s execution backend unreachable: %v", primary.Name(), err)
		} else {
			log.Printf("❌ %s execution failed to initialize: %v", primary.Name(), err)
		}
		_ = primary.Close()
	}

	if fallback == nil || (primary != nil && fallback.Name() == primary.Name()) {
		log.Println("⚠️ No execution backend available, signals will be parsed only")
		return nil, true
	}
	if err := fallback.Initialize(ctx); err != nil {
		log.Printf("❌ Fallback %s execution unavailable: %v", fallback.Name(), err)
		log.Println("⚠️ No execution backend available, signals will be parsed only")
		return nil, true
	}
	log.Printf("⚠️ DEGRADED: signals will be queued via %s and not executed", fallback.Name())
	return fallback, true
}
