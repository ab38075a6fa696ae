// Command jarvis-ctl talks to a running jarvis over its control socket.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	socketPath string
	dbPath     string
	formatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "jarvis-ctl",
	Short: "Control a running jarvis",
	Long:  "Trigger the wake word, query state, list background jobs and stop the jarvis voice assistant.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "S", "", "Control socket (default: $JARVIS_CONTROL_SOCKET or /tmp/jarvis.sock)")
	rootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	if env := os.Getenv("JARVIS_CONTROL_SOCKET"); env != "" {
		return env
	}
	return "/tmp/jarvis.sock"
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("JARVIS_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	if env := os.Getenv("JARVIS_HOME"); env != "" {
		home = env
	}
	return filepath.Join(home, ".local", "share", "jarvis", "jarvis.db")
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
