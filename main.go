package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
	"github.com/nathanieltooley/pocketbot/views/console"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serial string
	debug  bool

	// Receives log lines while the console is open
	logSink *global.LogSink
)

var rootCmd = &cobra.Command{
	Use:   "pocketbot",
	Short: "Plays Pokémon TCG Pocket battles on an Android device",
	Long: `pocketbot drives the Pokémon TCG Pocket app over adb: it starts battles,
reads the hand and board from screenshots and plays cards by priority.

Run without arguments to open the operator console.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context())
	},
}

// setup loads config and logging before any command runs
func setup(cmd *cobra.Command, args []string) {
	var out io.Writer = os.Stderr
	if usesConsole(cmd) {
		logSink = global.NewLogSink(256)
		out = logSink
	}

	global.GlobalInit(out)

	if serial != "" {
		global.Opt.DeviceSerial = serial
	}
	if debug {
		global.UpdateLogLevel(zerolog.DebugLevel)
	}
}

// usesConsole reports whether cmd opens the operator console, which owns the
// terminal and takes the log output
func usesConsole(cmd *cobra.Command) bool {
	if cmd == rootCmd {
		return true
	}
	if cmd == runCmd {
		headless, _ := cmd.Flags().GetBool("headless")
		return !headless
	}
	return false
}

func init() {
	rootCmd.PersistentPreRun = setup
	rootCmd.PersistentFlags().StringVar(&serial, "serial", "", "Device serial (overrides config and POCKETBOT_SERIAL)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// runConsole opens the operator console. The bot starts and stops from the
// console and asks its questions there.
func runConsole(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := newBot(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	var (
		program      *tea.Program
		orchestrator *engine.BattleOrchestrator
	)

	runner := engine.NewRunner(
		func(ctx context.Context) error { return orchestrator.Run(ctx) },
		func(err error) {
			if err != nil {
				log.Err(err).Msg("bot stopped")
			}
			program.Send(console.RunExitedMsg{Err: err})
		},
	)

	program = tea.NewProgram(console.NewModel(ctx, runner, logSink.Lines()), tea.WithAltScreen())
	bridge := console.NewBridge(program.Send, global.Opt.CapturesDir)
	orchestrator = b.orchestrator(bridge, bridge)

	_, err = program.Run()

	runner.Stop()
	if runErr := runner.Wait(); runErr != nil {
		log.Err(runErr).Msg("last run ended with an error")
	}

	return err
}
