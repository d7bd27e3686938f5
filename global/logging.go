package global

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	mb                = 1000000
	defaultMaxLogSize = 2.5 * mb
	defaultMaxLogs    = 2
)

// rollingFileWriter appends to name.log until it grows past maxSize, then
// archives it as name-1.log and shifts older archives up. At most maxLogs
// files are kept, the live one included.
type rollingFileWriter struct {
	FileDirectory string
	FileName      string

	maxSize int64
	maxLogs int

	mu sync.Mutex
}

func NewRollingFileWriter(fileDir string, fileName string) (*rollingFileWriter, error) {
	absFileDir, err := filepath.Abs(fileDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absFileDir, 0750); err != nil {
		return nil, err
	}

	return &rollingFileWriter{
		FileDirectory: absFileDir,
		FileName:      fileName,
		maxSize:       defaultMaxLogSize,
		maxLogs:       defaultMaxLogs,
	}, nil
}

func (w *rollingFileWriter) getFullFilePath() string {
	return filepath.Join(w.FileDirectory, fmt.Sprintf("%s.log", w.FileName))
}

func (w *rollingFileWriter) indexedLog(index int64) string {
	return filepath.Join(w.FileDirectory, fmt.Sprintf("%s-%d.log", w.FileName, index))
}

// archives returns the archived logs ordered newest first
func (w *rollingFileWriter) archives() ([]string, error) {
	logMatches, err := fs.Glob(os.DirFS(w.FileDirectory), w.FileName+"-*.log")
	if err != nil {
		return nil, err
	}

	indexed := lo.FilterMap(logMatches, func(log string, _ int) (string, bool) {
		_, ok := getLogIndex(w.FileName, log)
		return filepath.Join(w.FileDirectory, log), ok
	})
	slices.SortFunc(indexed, func(a, b string) int {
		ai, _ := getLogIndex(w.FileName, a)
		bi, _ := getLogIndex(w.FileName, b)
		return int(ai - bi)
	})

	return indexed, nil
}

func (w *rollingFileWriter) Write(b []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats, err := os.Stat(w.getFullFilePath())
	if err == nil && stats.Size() >= w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	mainLogFile, err := os.OpenFile(w.getFullFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, err
	}
	defer mainLogFile.Close()

	return mainLogFile.Write(b)
}

func (w *rollingFileWriter) rotate() error {
	archives, err := w.archives()
	if err != nil {
		return err
	}

	// shift from the oldest down so renames never collide
	for i := len(archives) - 1; i >= 0; i-- {
		index, _ := getLogIndex(w.FileName, archives[i])
		if int(index)+1 >= w.maxLogs {
			if err := os.Remove(archives[i]); err != nil {
				return err
			}
			continue
		}
		if err := os.Rename(archives[i], w.indexedLog(index+1)); err != nil {
			return err
		}
	}

	if w.maxLogs <= 1 {
		return os.Remove(w.getFullFilePath())
	}
	return os.Rename(w.getFullFilePath(), w.indexedLog(1))
}

func getLogIndex(baseFileName string, filePath string) (int64, bool) {
	fileName, _ := strings.CutSuffix(filepath.Base(filePath), ".log")
	indexStr, found := strings.CutPrefix(fileName, baseFileName+"-")
	if !found {
		return 0, false
	}

	index, err := strconv.ParseInt(indexStr, 10, 32)
	if err != nil || index < 1 {
		return 0, false
	}

	return index, true
}

// LogSink hands formatted log lines to the operator console. Lines are dropped
// when the console falls behind so logging never blocks the bot.
type LogSink struct {
	lines chan string
}

func NewLogSink(buffer int) *LogSink {
	return &LogSink{lines: make(chan string, buffer)}
}

func (s *LogSink) Write(b []byte) (int, error) {
	line := strings.TrimRight(string(b), "\n")
	select {
	case s.lines <- line:
	default:
	}

	return len(b), nil
}

func (s *LogSink) Lines() <-chan string {
	return s.lines
}

func createFileWriter(configDir string) (zerolog.ConsoleWriter, error) {
	rollingWriter, err := NewRollingFileWriter(filepath.Join(configDir, "logs/"), "pocketbot")
	if err != nil {
		return zerolog.ConsoleWriter{}, err
	}

	return zerolog.ConsoleWriter{Out: rollingWriter, NoColor: true}, nil
}

// NewEngineLogger bridges zerolog into the logr logger the engine expects.
// V(1) maps to debug.
func NewEngineLogger(logger zerolog.Logger) logr.Logger {
	zerologr.SetMaxV(1)
	return zerologr.New(&logger)
}
