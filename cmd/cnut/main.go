// ABOUTME: Entry point for the CelesteNet user tool
// ABOUTME: Runs the account server and one-shot account administration commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/config"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/logging"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/server"
)

// Version is set at build time.
var version = "dev"

const banner = `
                  _
  ___ _ __  _   _| |_
 / __| '_ \| | | | __|
| (__| | | | |_| | |_
 \___|_| |_|\__,_|\__|
`

// getConfigPath returns the path to the config file.
// Priority: CNUT_CONFIG env var > ./config.yaml > XDG_CONFIG_HOME/cnut/config.yaml > ~/.config/cnut/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv(config.EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "cnut", "config.yaml")
}

func usage() {
	fmt.Println("Usage: cnut <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                   Start the account server")
	fmt.Println("  init                                    Create a new config file interactively")
	fmt.Println("  health                                  Check server health")
	fmt.Println()
	fmt.Println("  create-user UID [--password] [--email ADDR]")
	fmt.Println("  passwd UID                              Set a web password")
	fmt.Println("  reset-key UID                           Issue a new key")
	fmt.Println("  rename UID NAME                         Change the display name")
	fmt.Println("  op UID | deop UID                       Grant or revoke admin")
	fmt.Println("  ban UID [--minutes N] [--days N] [--reason TEXT]")
	fmt.Println("  unban UID")
	fmt.Println("  avatar UID [FILE]                       Store an avatar, from FILE or the avatar cache")
	fmt.Println("  info UID|KEY                            Show a user")
	fmt.Println("  list                                    List all users")
	fmt.Println("  cleanup UID                             Purge rows of an unregistered uid")
	fmt.Println("  remove-user UID                         Delete a user and all its data")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "help", "-h", "--help":
		usage()
		return
	default:
		cmd, ok := userCommands[os.Args[1]]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			os.Exit(1)
		}
		err = runUserCommand(ctx, cmd, args)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, res, err := config.Init(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := logging.Setup(cfg.Logging, os.Stdout)
	defer logCloser.Close()
	access, accessCloser := logging.NewAccessLogger(cfg.Logging)
	defer accessCloser.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if res.Created {
		yellow.Print("    ✚ ")
		fmt.Printf("Created default config, review it before exposing the server\n")
	}
	for _, key := range res.AddedKeys {
		yellow.Print("    ✚ ")
		fmt.Printf("Added config key %s\n", key)
	}

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.DatabasePath())
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Server.GRPCAddr != "" {
		fmt.Printf("Lookup:    %s\n", cfg.Server.GRPCAddr)
	} else {
		fmt.Printf("Lookup:    disabled\n")
	}
	green.Print("    ▶ ")
	fmt.Printf("Game API:  %s\n", cfg.CelesteNet.APIAddr)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting cnut",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	srv, err := server.New(ctx, cfg, logger, access)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("http: healthy")

	if cfg.Server.GRPCAddr == "" {
		return nil
	}
	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing lookup service: %w", err)
	}
	defer conn.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	hc, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("lookup health check failed: %w", err)
	}
	if hc.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("lookup unhealthy: %s", hc.GetStatus())
	}
	fmt.Println("lookup: healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("cnut configuration setup")
	fmt.Println("========================")
	fmt.Println()

	cfg, err := config.Generate()
	if err != nil {
		return err
	}

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	cfg.Server.HTTPAddr = prompt(reader, "HTTP address", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = prompt(reader, "Lookup gRPC address (empty to disable)", cfg.Server.GRPCAddr)

	fmt.Println("\n--- Storage Configuration ---")
	cfg.Storage.UserDataPath = prompt(reader, "CelesteNet UserData directory", cfg.Storage.UserDataPath)
	cfg.Storage.Driver = prompt(reader, "SQLite driver (sqlite3/sqlite)", cfg.Storage.Driver)

	fmt.Println("\n--- CelesteNet ---")
	cfg.CelesteNet.APIAddr = prompt(reader, "Game server API address", cfg.CelesteNet.APIAddr)
	cfg.CelesteNet.WebRedirect = prompt(reader, "Game server web address", cfg.CelesteNet.WebRedirect)
	cfg.CelesteNet.WebTitle = prompt(reader, "Web title", cfg.CelesteNet.WebTitle)

	fmt.Println("\n--- Admins ---")
	if admins := prompt(reader, "Super admin uids (comma separated)", ""); admins != "" {
		for _, uid := range strings.Split(admins, ",") {
			if uid = strings.TrimSpace(uid); uid != "" {
				cfg.Auth.SuperAdmin = append(cfg.Auth.SuperAdmin, uid)
			}
		}
	}
	cfg.Auth.ServiceToken = prompt(reader, "Lookup service token (empty for none)", "")

	fmt.Println("\n--- Tailscale Configuration ---")
	cfg.Tailscale.Enabled = yes(prompt(reader, "Enable Tailscale?", "no"))
	if cfg.Tailscale.Enabled {
		cfg.Tailscale.Hostname = prompt(reader, "Tailscale hostname", "cnut")
		cfg.Tailscale.AuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		cfg.Tailscale.Ephemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		cfg.Tailscale.Funnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", cfg.Logging.Format)
	cfg.Logging.Dir = prompt(reader, "Log directory (empty for console only)", cfg.Logging.Dir)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Write(outputFile, cfg); err != nil {
		return err
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  CNUT_CONFIG=%s cnut serve\n", outputFile)
	return nil
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// EOF keeps the default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
