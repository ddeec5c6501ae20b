package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"signal-bridge/internal/bridge"
	"signal-bridge/internal/execution"
	"signal-bridge/internal/queue"
	"signal-bridge/pkg/config"
	"signal-bridge/pkg/db"
)

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

func main() {
	fmt.Println("🏥 Signal Bridge Health Check")
	fmt.Println("============================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := HealthReport{
		Overall:  "HEALTHY",
		Services: make([]HealthStatus, 0),
	}

	// 1. Config check
	cfg, cfgStatus := checkConfig()
	report.Services = append(report.Services, cfgStatus)
	if cfg != nil {
		// 2. Database check
		report.Services = append(report.Services, checkDatabase(ctx, cfg))

		// 3. Signal queue directory
		report.Services = append(report.Services, checkQueue(ctx, cfg))

		// 4. Terminal bridge (bridge mode only)
		if execution.ResolveMode(cfg.TradingMode, cfg.HasRemoteCredentials()) == execution.ModeBridge {
			report.Services = append(report.Services, checkBridge(ctx, cfg))
		}

		// 5. API server check
		report.Services = append(report.Services, checkAPIServer(ctx, cfg))
	}

	for _, svc := range report.Services {
		if svc.Status == "UNHEALTHY" {
			report.Overall = "UNHEALTHY"
			break
		} else if svc.Status == "DEGRADED" && report.Overall != "UNHEALTHY" {
			report.Overall = "DEGRADED"
		}
	}

	fmt.Println("Results:")
	fmt.Println("--------")
	for _, svc := range report.Services {
		statusIcon := "✓"
		if svc.Status == "UNHEALTHY" {
			statusIcon = "✗"
		} else if svc.Status == "DEGRADED" {
			statusIcon = "⚠"
		}
		fmt.Printf("%s %-20s %s %s\n", statusIcon, svc.Service, svc.Status, svc.Message)
	}

	fmt.Println()
	fmt.Printf("Overall Status: %s\n", report.Overall)

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
	}

	if report.Overall == "UNHEALTHY" {
		os.Exit(1)
	}
}

func newStatus(service string) HealthStatus {
	return HealthStatus{Service: service, Status: "HEALTHY", Timestamp: time.Now()}
}

func checkConfig() (*config.Config, HealthStatus) {
	status := newStatus("Configuration")
	cfg, err := config.Load()
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Failed to load: %v", err)
		return nil, status
	}
	status.Message = fmt.Sprintf("Port=%s mode=%s", cfg.Port, cfg.TradingMode)
	if cfg.TradingMode == string(execution.ModeMetaAPI) && !cfg.HasRemoteCredentials() {
		status.Status = "DEGRADED"
		status.Message += " (metaapi credentials missing, simulation will be used)"
	}
	return cfg, status
}

func checkDatabase(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Database")
	database, err := db.New(cfg.DBPath)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Connection failed: %v", err)
		return status
	}
	defer database.Close()

	if err := database.Ping(ctx); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Ping failed: %v", err)
		return status
	}
	if err := db.ApplyMigrations(database); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Schema check failed: %v", err)
		return status
	}
	recent, err := database.RecentAudit(ctx, 1)
	if err != nil {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("Audit query failed: %v", err)
		return status
	}
	status.Message = "Connected"
	if len(recent) == 1 {
		status.Message = fmt.Sprintf("Connected (last signal %s, %s)", recent[0].CreatedAt.Format(time.RFC3339), recent[0].Stage)
	}
	return status
}

func checkQueue(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Signal Queue")
	store, err := queue.NewStore(cfg.SignalsDir)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	if err := store.CheckWritable(); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	pending, err := store.ListPending(ctx)
	if err != nil {
		status.Status = "DEGRADED"
		status.Message = err.Error()
		return status
	}
	status.Message = fmt.Sprintf("%s writable, %d pending", store.PendingDir(), len(pending))
	return status
}

func checkBridge(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("Terminal Bridge")
	addr := bridge.Addr(cfg.MT5Host, cfg.MT5Port)
	client := bridge.New(addr, cfg.BridgeTimeout)
	defer client.Close()
	if err := client.Ping(ctx); err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("%s: %v", addr, err)
		return status
	}
	status.Message = addr
	return status
}

func checkAPIServer(ctx context.Context, cfg *config.Config) HealthStatus {
	status := newStatus("API Server")
	url := fmt.Sprintf("http://localhost:%s/health", cfg.Port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = err.Error()
		return status
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		status.Status = "UNHEALTHY"
		status.Message = fmt.Sprintf("Not reachable: %v", err)
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Status = "DEGRADED"
		status.Message = fmt.Sprintf("Status code: %d", resp.StatusCode)
		return status
	}
	status.Message = "Responding"
	return status
}
