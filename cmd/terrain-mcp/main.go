// Terrain MCP server provides MCP tools for submitting and managing CyVerse
// Discovery Environment analyses through the Terrain API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cyverse-de/terrain-mcp/internal/config"
	"github.com/cyverse-de/terrain-mcp/internal/logging"
	"github.com/cyverse-de/terrain-mcp/internal/metrics"
	terrainServer "github.com/cyverse-de/terrain-mcp/internal/server"
	"github.com/cyverse-de/terrain-mcp/internal/terrain"
	"github.com/cyverse-de/terrain-mcp/internal/workflows"
	"github.com/mark3labs/mcp-go/server"
)

const version = "1.0.0"

func main() {
	// Define CLI flags
	var (
		configFile   = flag.String("config", "", "Path to configuration file")
		baseURL      = flag.String("base-url", "", "Terrain base URL (overrides config file and env var)")
		token        = flag.String("token", "", "Terrain bearer token (overrides config file and env var)")
		username     = flag.String("username", "", "Terrain username (overrides config file and env var)")
		password     = flag.String("password", "", "Terrain password (overrides config file and env var)")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error (default: info)")
		logJSON      = flag.Bool("log-json", false, "Force JSON-formatted log output")
		metricsAddr  = flag.String("metrics-addr", "", "Address for the Prometheus metrics endpoint (empty = disabled)")
		showVersion  = flag.Bool("version", false, "Show version and exit")
		pollInterval = flag.Int("poll-interval", 0, "Analysis status poll interval in seconds (default: 5)")
		submitPause  = flag.Int("submit-pause", 0, "Pause between batch submissions in seconds (default: 0)")
	)

	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("terrain-mcp version %s\n", version)
		os.Exit(0)
	}

	// Build configuration from all sources
	cliConfig := &config.Config{
		ConfigFile:   *configFile,
		BaseURL:      *baseURL,
		Token:        *token,
		Username:     *username,
		Password:     *password,
		LogLevel:     *logLevel,
		LogJSON:      *logJSON,
		MetricsAddr:  *metricsAddr,
		PollInterval: *pollInterval,
		SubmitPause:  *submitPause,
	}

	// Load configuration with proper precedence
	cfg, err := config.Load(cliConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := logging.SetupAuto(os.Stderr, cfg.LogLevel, cfg.LogJSON)
	logger.Info("terrain-mcp starting", "version", version, "base_url", cfg.BaseURL)

	// Metrics endpoint, when configured
	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Create Terrain API client
	terrainClient := terrain.NewClient(cfg.BaseURL, terrain.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, m)

	if cfg.Token != "" {
		terrainClient.SetToken(cfg.Token)
	} else {
		if _, err := terrainClient.Authenticate(context.Background()); err != nil {
			logger.Error("authentication failed", "error", err)
			os.Exit(1)
		}
	}

	// Create workflows
	pollDuration := time.Duration(cfg.PollInterval) * time.Second
	pauseDuration := time.Duration(cfg.SubmitPause) * time.Second
	terrainWorkflows := workflows.NewTerrainWorkflows(terrainClient, pollDuration, pauseDuration)

	// Create MCP server
	terrainMCPServer := terrainServer.NewTerrainMCPServer(terrainWorkflows, terrainClient)

	// Start stdio server
	logger.Info("starting MCP stdio server")
	if err := server.ServeStdio(terrainMCPServer.Server()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("terrain-mcp shutting down")
}
