// Command lyra boots the multi-agent runtime described in SPEC_FULL.md
// §6: load a YAML bootstrap record, wire the bus/ticker/keyring/ledger/
// consensus/scheduler stack, and run the kernel's boot sequence. Grounded
// on cmd/consensus/main.go's cobra root command with subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lyra-sh/lyra/bus"
	"github.com/lyra-sh/lyra/consensus"
	"github.com/lyra-sh/lyra/internal/logging"
	"github.com/lyra-sh/lyra/kernel"
	"github.com/lyra-sh/lyra/keyring"
	"github.com/lyra-sh/lyra/ledger"
	"github.com/lyra-sh/lyra/scheduler"
	"github.com/lyra-sh/lyra/ticker"
)

// yamlAgentSpec mirrors kernel.AgentSpec for YAML decoding, so the core
// kernel package never needs to know about YAML (SPEC_FULL.md Non-goals).
type yamlAgentSpec struct {
	ID      string   `yaml:"id"`
	Role    string   `yaml:"role"`
	Model   string   `yaml:"model"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type yamlBootstrapRecord struct {
	Agents       []yamlAgentSpec `yaml:"agents"`
	Quorum       float64         `yaml:"quorum"`
	TickInterval string          `yaml:"tick_interval"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lyra",
		Short: "lyra runs a weighted-consensus multi-agent scheduler",
		// main prints the returned error as the single line of output.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(bootCmd())
	return cmd
}

func bootCmd() *cobra.Command {
	var (
		configPath string
		interval   time.Duration
		quorum     float64
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "boot the runtime from a bootstrap record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(cmd.Context(), configPath, interval, quorum, debug)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "lyra.yaml", "path to the bootstrap record")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "ticker interval")
	cmd.Flags().Float64Var(&quorum, "quorum", 0, "consensus quorum threshold, overrides the record's own value if set above zero")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func runBoot(ctx context.Context, configPath string, interval time.Duration, quorumFlag float64, debug bool) error {
	log := logging.New(debug)
	defer log.Sync() //nolint:errcheck

	record, err := loadBootstrapRecord(configPath)
	if err != nil {
		return err
	}

	quorum := record.Quorum
	if quorumFlag > 0 {
		quorum = quorumFlag
	}
	if quorum <= 0 {
		quorum = consensus.DefaultQuorum
	}
	if interval <= 0 {
		interval = time.Second
	}

	b := bus.New(log)
	tk := ticker.New(b, interval, log)
	kr := keyring.New("var/keys")
	led := ledger.New("var/ledger", log)
	if err := led.Load(); err != nil {
		return err
	}
	ce := consensus.New(b, led, nil, log, consensus.WithQuorum(quorum))
	sch := scheduler.New(b, ce, log, scheduler.WithTranscriptPath("var/transcript.json"))

	k := kernel.New(b, tk, kr, led, ce, sch, log, nil)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := k.Boot(ctx, record); err != nil {
		return err
	}

	<-ctx.Done()
	return k.Shutdown(context.Background())
}

func loadBootstrapRecord(path string) (kernel.BootstrapRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return kernel.BootstrapRecord{}, err
	}

	var parsed yamlBootstrapRecord
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return kernel.BootstrapRecord{}, err
	}

	record := kernel.BootstrapRecord{Quorum: parsed.Quorum}
	if parsed.TickInterval != "" {
		d, err := time.ParseDuration(parsed.TickInterval)
		if err != nil {
			return kernel.BootstrapRecord{}, err
		}
		record.TickInterval = d
	}
	for _, a := range parsed.Agents {
		record.Agents = append(record.Agents, kernel.AgentSpec{
			ID: a.ID, Role: a.Role, Model: a.Model, Command: a.Command, Args: a.Args,
		})
	}
	return record, nil
}
