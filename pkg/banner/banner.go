// Package banner prints the startup banner and effective configuration
// summary to stdout.
package banner

import (
	"fmt"
	"io"
	"time"

	"corehttpd/pkg/config"
)

const art = `
   ____                _   _   _         _
  / ___|___  _ __ ___ | | | | | |_ _ __ | |
 | |   / _ \| '__/ _ \| |_| |_| | '_ \| |
 | |__| (_) | | |  __/|  _  | |_| |_) | |
  \____\___/|_|  \___||_| |_|\__| .__/|_|
                                |_|
`

// Print writes the ASCII banner and a summary of cfg to w.
func Print(w io.Writer, version string, cfg config.Config) {
	fmt.Fprint(w, art)
	fmt.Fprintf(w, "corehttpd %s\n\n", version)
	fmt.Fprintf(w, "  transport            %s\n", cfg.Transport)
	fmt.Fprintf(w, "  addr                 %s\n", cfg.Addr)
	fmt.Fprintf(w, "  server name/port     %s:%s\n", cfg.ServerName, cfg.ServerPort)
	fmt.Fprintf(w, "  workers              %d\n", cfg.Workers)
	fmt.Fprintf(w, "  supervisor interval  %s\n", time.Duration(cfg.SupervisorInterval))
	fmt.Fprintf(w, "  max header size      %d bytes\n", cfg.MaxHeaderSize)
	fmt.Fprintf(w, "  rate limit           %.1f rps, burst %d\n", cfg.RateLimitRPS, cfg.RateLimitBurst)
	if cfg.RollingRestartCron != "" {
		fmt.Fprintf(w, "  rolling restart cron %s\n", cfg.RollingRestartCron)
	}
	fmt.Fprintf(w, "  admin addr           %s\n", cfg.AdminAddr)
	fmt.Fprintf(w, "  log level            %s\n", cfg.LogLevel)
	fmt.Fprintln(w)
}
