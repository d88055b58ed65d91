package cli

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/erg0nix/kontekst-governor/internal/app"
	"github.com/erg0nix/kontekst-governor/internal/config"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "governor",
		Short:         "Budget governor for long-running agent sessions",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("server", "", "server address")
	rootCmd.PersistentFlags().String("env-file", "", "path to .env file (default ./.env)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newUnitCmd())
	rootCmd.AddCommand(newOutputCmd())
	rootCmd.AddCommand(newCheckpointCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newInitCmd())

	return rootCmd
}

func configPathOrDefault(path string) string {
	if path == "" {
		return filepath.Join(config.Default().DataDir, "config.toml")
	}
	return path
}

func loadConfig(path string) (config.Config, error) {
	return config.LoadOrCreate(configPathOrDefault(path))
}

func resolveServer(override string, cfg config.Config) string {
	if override != "" {
		return override
	}
	return clientAddrFromBind(cfg.Bind)
}

func clientAddrFromBind(bind string) string {
	host, port, err := netSplitHostPort(bind)
	if err != nil || port == "" {
		return bind
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1:" + port
	}
	return bind
}

func netSplitHostPort(addr string) (string, string, error) {
	if strings.HasPrefix(addr, ":") {
		return "", strings.TrimPrefix(addr, ":"), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", err
	}
	return host, port, nil
}

func alreadyRunning(dataDir string) bool {
	return app.ReadPID(app.PIDFile(dataDir)) != 0
}

func printServerNotRunning(addr string, err error) {
	fmt.Println(styleError.Render("governor is not running at " + addr))
	fmt.Println("start with: " + styleCommand.Render("governor serve"))
	if err != nil {
		fmt.Println(styleDim.Render(err.Error()))
	}
}

// reportCallError prints a hint when the daemon is unreachable and returns err unchanged.
func reportCallError(addr string, err error) error {
	if status.Code(err) == codes.Unavailable {
		printServerNotRunning(addr, nil)
	}
	return err
}

func startServer(cfg config.Config, configPath string, foreground bool) error {
	if alreadyRunning(cfg.DataDir) {
		serverAddr := resolveServer("", cfg)
		fmt.Println(styleDim.Render("governor already running at " + serverAddr))
		return nil
	}

	serverCmd := exec.Command(os.Args[0], "serve", "--foreground", "--bind", cfg.Bind)
	if configPath != "" {
		serverCmd.Args = append(serverCmd.Args, "--config", configPath)
	}

	if foreground {
		serverCmd.Stdout = os.Stdout
		serverCmd.Stderr = os.Stderr
		return serverCmd.Run()
	}

	logFile := filepath.Join(cfg.DataDir, "server.log")
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("start server: create data dir: %w", err)
	}

	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("start server: open log: %w", err)
	}
	defer out.Close()

	serverCmd.Stdout = out
	serverCmd.Stderr = out

	if err := serverCmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	fmt.Println(
		styleSuccess.Render("started governor") + " " +
			stylePID.Render(fmt.Sprintf("pid %d", serverCmd.Process.Pid)))
	return nil
}
