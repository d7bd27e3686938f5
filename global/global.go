package global

import (
	"io"
	"os"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

var (
	TERM_WIDTH, TERM_HEIGHT, _ = term.GetSize(int(os.Stdout.Fd()))

	SelectKey = key.NewBinding(
		key.WithKeys("enter"),
	)
	MoveDownKey = key.NewBinding(
		key.WithKeys("down", "j"),
	)
	MoveUpKey = key.NewBinding(
		key.WithKeys("up", "k"),
	)
	StartKey = key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	)
	StopKey = key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	)
	QuitKey = key.NewBinding(
		key.WithKeys("q", tea.KeyCtrlC.String()),
		key.WithHelp("q", "quit"),
	)

	BackKey = key.NewBinding(key.WithKeys(tea.KeyEsc.String()))

	Opt = populateConfig(GlobalConfig{})

	initLogger zerolog.Logger
)

// GlobalInit loads .env and the config file, then sets up the global logger.
// Log lines go to the rolling log file and to console, which is either the
// terminal or the operator console's sink.
func GlobalInit(console io.Writer) {
	configDir := DefaultConfigDir()

	// Basic logging for config debugging
	initLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := os.MkdirAll(configDir, 0750); err != nil {
		initLogger.Err(err).Msg("error occured trying to create config dir")
	}
	if err := LoadEnv(".env"); err != nil {
		initLogger.Err(err).Msg("error occurred while loading .env")
	}

	config, err := LoadConfig(DefaultConfigLocation())
	if err != nil {
		initLogger.Err(err).Msg("error occurred while loading config, using defaults")
	}
	applyEnvOverrides(&config)
	Opt = config

	level := zerolog.InfoLevel
	if Opt.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = createLogger(configDir, level, console)
	engine.SetInternalLogger(NewEngineLogger(log.Logger))
}

func createLogger(configDir string, level zerolog.Level, console io.Writer) zerolog.Logger {
	writers := []io.Writer{}
	if console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, NoColor: console != os.Stderr && console != os.Stdout})
	}

	fileWriter, err := createFileWriter(configDir)
	if err != nil {
		initLogger.Err(err).Msg("log file unavailable, logging to console only")
	} else {
		writers = append(writers, fileWriter)
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger().Level(level)
}

// UpdateLogLevel changes the level of the global logger and the engine logger
func UpdateLogLevel(level zerolog.Level) {
	log.Logger = log.Logger.Level(level)
	engine.SetInternalLogger(NewEngineLogger(log.Logger))
}
