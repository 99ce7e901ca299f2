package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gatt-sentry/internal/alarm"
	"github.com/chaz8081/gatt-sentry/internal/ble"
	"github.com/chaz8081/gatt-sentry/internal/clock"
	"github.com/chaz8081/gatt-sentry/internal/config"
	"github.com/chaz8081/gatt-sentry/internal/metrics"
	"github.com/chaz8081/gatt-sentry/internal/sensor"
	"github.com/chaz8081/gatt-sentry/internal/service"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/gatt-sentry/config.yaml)")
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	for _, name := range cfg.InvertedThresholds() {
		slog.Warn("[CONFIG] low threshold above high; low comparison wins", "service", name)
	}

	printBanner(cfg)

	// Metrics endpoint
	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		metrics.Init()
		metricsSrv = startMetrics(cfg.Metrics.Listen)
	}

	// Sensors
	readers, closeSensors, err := openSensors(cfg)
	if err != nil {
		log.Fatalf("Failed to open sensors: %v", err)
	}
	defer closeSensors()
	log.Printf("Sensors ready (backend: %s)", cfg.Sensors.Backend)

	// Services
	clk := clock.New()
	arbiter := alarm.NewArbiter()
	services, err := buildServices(cfg, readers, clk, arbiter)
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}

	runner := service.NewRunner(ble.NewGATTPeripheral(), clk, services, service.RunnerOptions{
		DeviceName:    cfg.DeviceName,
		PollInterval:  cfg.PollInterval,
		SyncOnConnect: cfg.Clock.SyncOnConnect,
	})
	if err := runner.Start(); err != nil {
		log.Fatalf("Failed to start BLE peripheral: %v\n\nCheck that Bluetooth is powered on and BlueZ is running.", err)
	}

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Ready! Advertising as %q. Ctrl+C to quit.", cfg.DeviceName)
	if err := runner.Run(ctx); err != nil {
		log.Printf("ERROR: service loop stopped: %v", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: metrics shutdown: %v", err)
		}
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// buildServices creates one Service per enabled entry, in policy order.
func buildServices(cfg *config.Config, readers map[string]sensor.Reader, clk *clock.Clock, arbiter *alarm.Arbiter) ([]*service.Service, error) {
	settings := cfg.Services.ByName()
	var services []*service.Service
	for _, policy := range alarm.Policies() {
		sc := settings[policy.Name]
		if !sc.Enabled {
			continue
		}
		base, ok := service.BaseUUID(policy.Name)
		if !ok {
			return nil, fmt.Errorf("no UUID family for %s", policy.Name)
		}
		svc, err := service.New(service.Options{
			Policy:   policy,
			Defaults: alarm.Config{Low: sc.Low, High: sc.High, AlarmEnabled: sc.AlarmEnabled},
			BaseUUID: base,
			Reader:   readers[policy.Name],
			Clock:    clk,
			Arbiter:  arbiter,
		})
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// openSensors returns a reader for every enabled service.
func openSensors(cfg *config.Config) (map[string]sensor.Reader, func(), error) {
	if cfg.Sensors.Backend == "sim" {
		seed := time.Now().UnixNano()
		return map[string]sensor.Reader{
			"humidity":       sensor.NewSim(seed, 500, 200, 900, 20),
			"soil_moisture":  sensor.NewSim(seed+1, 50, 0, 100, 4),
			"water_level":    sensor.NewSim(seed+2, 50, 0, 100, 3),
			"water_presence": sensor.NewSim(seed+3, 0, 0, 1, 1),
		}, func() {}, nil
	}

	s := cfg.Sensors
	readers := map[string]sensor.Reader{
		"soil_moisture":  sensor.NewPercent(sensor.IIOChannel{Path: s.SoilMoistureADC}, s.ADCMax, s.SoilMoistureInvert),
		"water_level":    sensor.NewPercent(sensor.IIOChannel{Path: s.WaterLevelADC}, s.ADCMax, false),
		"water_presence": sensor.NewPresence(sensor.SysfsPin{Path: s.WaterPresenceGPIO}, s.WaterPresenceActiveLow),
	}
	if !cfg.Services.Humidity.Enabled {
		return readers, func() {}, nil
	}

	bus, err := sensor.OpenI2C(s.I2CBus)
	if err != nil {
		return nil, nil, err
	}
	hum, err := sensor.NewHumidity(bus, s.BME280Address)
	if err != nil {
		bus.Close()
		if errors.Is(err, sensor.ErrNotPresent) {
			return nil, nil, fmt.Errorf("no BME280 at %#x on %s: %w", s.BME280Address, s.I2CBus, err)
		}
		return nil, nil, err
	}
	readers["humidity"] = hum
	return readers, func() { bus.Close() }, nil
}

// startMetrics serves /metrics in the background.
func startMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[METRICS] server stopped", "addr", addr, "error", err)
		}
	}()
	log.Printf("Metrics listening on %s/metrics", addr)
	return srv
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== gatt-sentry ===")
	fmt.Printf("  Device:   %s\n", cfg.DeviceName)
	fmt.Printf("  Poll:     %s\n", cfg.PollInterval)
	fmt.Printf("  Sensors:  %s\n", cfg.Sensors.Backend)
	for _, p := range alarm.Policies() {
		sc := cfg.Services.ByName()[p.Name]
		if !sc.Enabled {
			continue
		}
		fmt.Printf("  %-15s low=%d high=%d alarm=%t (%s)\n", p.Name+":", sc.Low, sc.High, sc.AlarmEnabled, p.Path)
	}
	if cfg.Metrics.Listen != "" {
		fmt.Printf("  Metrics:  %s\n", cfg.Metrics.Listen)
	}
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("===================")
}
