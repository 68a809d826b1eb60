package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/ocsup"
	"github.com/loykin/ocsup/internal/config"
)

// embedded_logger: server stdout/stderr go to the supervisor's log and, when
// server.output is configured, to rotated files. The custom command below prints
// a line on each stream and exits, so the start fails and the files are complete.
func main() {
	logDir := os.Getenv("OCSUP_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("ocsup-logs-%d", time.Now().UnixNano()))
	}

	cfg := config.Defaults()
	cfg.Server.ProjectDirectory = os.TempDir()
	cfg.Server.UseCustomCommand = true
	cfg.Server.CustomCommand = "echo hello-out; echo hello-err 1>&2; exit 1"
	cfg.Server.Output.Dir = logDir
	cfg.Metrics.Enabled = false

	sup, err := ocsup.NewFromConfig(&cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = sup.Close() }()

	if err := sup.Start(context.Background()); err != nil {
		fmt.Println("start failed as expected:", sup.LastError())
	}

	fmt.Println("Embedded logger example")
	fmt.Println("  Log directory:", logDir)
	fmt.Println("  Stdout log:", filepath.Join(logDir, "server.stdout.log"))
	fmt.Println("  Stderr log:", filepath.Join(logDir, "server.stderr.log"))
	fmt.Println("Tip: set OCSUP_LOG_DIR to choose a custom log directory.")
}
