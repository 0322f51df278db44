// mkwebuser provisions an isolated, quota-limited, sftp-only user
// environment on the local host: system account, fixed-size ext4 volume,
// loopback mount, chroot jail, sftp-only login. Must run as root.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mkwebuser/internal/config"
	"mkwebuser/internal/engine"
	"mkwebuser/internal/gateway"
	"mkwebuser/internal/plan"
)

var (
	version = "1.0.0"
	commit  = "unknown"
)

// exit codes, part of the tool's contract
const (
	exitOK                 = 0
	exitValidation         = 1
	exitRolledBack         = 2
	exitRollbackIncomplete = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		username   string
		quota      uint64
		base       string
		mountBase  string
		configPath string
		timeout    time.Duration
		dryRun     bool
	)

	code := exitOK
	rootCmd := &cobra.Command{
		Use:           "mkwebuser",
		Short:         "provision a quota-limited sftp-only web space account",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				code = exitValidation
				return fmt.Errorf("config: %w", err)
			}
			if base == "" {
				base = cfg.DefaultBase
			}
			if mountBase == "" {
				mountBase = cfg.DefaultMount
			}
			req := plan.Request{
				Username:  username,
				QuotaMiB:  quota,
				UserBase:  base,
				MountBase: mountBase,
			}
			code = provision(cmd, cfg, req, timeout, dryRun)
			return nil
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&username, "username", "u", "", "account name to provision (required)")
	f.Uint64VarP(&quota, "quota", "q", 1024, "volume size in MiB; a hard cap")
	f.StringVarP(&base, "base", "b", "", "base directory for account homes (default /home)")
	f.StringVarP(&mountBase, "mountbase", "m", "", "base directory for volume mount points (default /srv/mnt)")
	f.StringVar(&configPath, "config", "", "path to config file (default "+config.DefaultConfigPath+")")
	f.DurationVar(&timeout, "timeout", 10*time.Minute, "deadline for the whole provisioning call")
	f.BoolVar(&dryRun, "dry-run", false, "print the plan without executing it")
	f.BoolP("version", "V", false, "version for mkwebuser")
	_ = rootCmd.MarkFlagRequired("username")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == exitOK {
			code = exitValidation
		}
	}
	return code
}

func provision(cmd *cobra.Command, cfg config.Config, req plan.Request, timeout time.Duration, dryRun bool) int {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.LogLevel).With().Timestamp().Logger()

	if dryRun {
		p, err := plan.Build(req, cfg.MaxQuotaMiB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitValidation
		}
		for i, st := range p.Steps {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, st.Description)
		}
		return exitOK
	}

	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "Error: mkwebuser must be run as root")
		return exitValidation
	}

	gw := gateway.NewLocal(cfg.SSHDConfigPath, cfg.CommandTimeout, log)
	host := &gateway.LocalHost{SSHDConfigPath: cfg.SSHDConfigPath}
	eng := engine.New(cfg, gw, host, log)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := eng.Provision(ctx, req)
	if err != nil {
		// validation, conflict and lock errors all abort before any side
		// effect; nothing was touched, nothing was rolled back
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitValidation
	}

	return report(res, req)
}

func report(res *engine.Result, req plan.Request) int {
	switch res.Outcome {
	case engine.OutcomeSuccess:
		color.Green("[SUCCESS] User { name: %s }; Userspace { path: %s; size: %dM; mount: %s }",
			req.Username, req.VolumePath(), req.QuotaMiB, req.MountPoint())
		return exitOK
	case engine.OutcomeRolledBack:
		color.Red("[FAILED] %v", res.Cause)
		fmt.Fprintln(os.Stderr, "All applied changes were rolled back.")
		return exitRolledBack
	default:
		color.Red("[FAILED] %v", res.Cause)
		fmt.Fprintln(os.Stderr, "Rollback incomplete; manual cleanup required for:")
		for _, r := range res.Residual {
			fmt.Fprintf(os.Stderr, "  - %s\n", r)
		}
		return exitRollbackIncomplete
	}
}
