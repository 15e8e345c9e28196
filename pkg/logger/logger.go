package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmfrank63/mcp-windbg/pkg/osutil"
)

const (
	MCP_WINDBG_LOG_FOLDER = "MCP_WINDBG_LOG_FOLDER" // Folder to write diagnostics logs to (defaults to a temp folder)
	MCP_WINDBG_LOG_LEVEL  = "MCP_WINDBG_LOG_LEVEL"  // Log level to include in diagnostics logs (defaults to none)

	// VerbosityFlagName is the name of the flag AddLevelFlag registers.
	VerbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
)

var defaultLogPath = filepath.Join(os.TempDir(), "mcp-windbg", "logs")

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New builds a logger that writes human-readable output to stderr and,
// when MCP_WINDBG_LOG_LEVEL is set, machine-readable JSON to a diagnostics
// log file.
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Honor Windows line endings for logs if appropriate
	if osutil.IsWindows() {
		encoderConfig.LineEnding = string(osutil.CRLF())
	}
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	consoleAtomicLevel := zap.NewAtomicLevel()

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleAtomicLevel),
	}

	var diagnosticsLogErr error
	if logCore, err := getDiagnosticsLogCore(name, encoderConfig); err != nil {
		// Ignore the error if diagnostics log isn't enabled
		if !errors.Is(err, errDiagnosticsLogNotEnabled) {
			diagnosticsLogErr = err
		}
	} else {
		cores = append(cores, logCore)
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))
	logger := zapr.NewLogger(zapLogger)

	if diagnosticsLogErr != nil {
		logger.Error(diagnosticsLogErr, "failed to enable diagnostics log output")
		fmt.Fprintf(os.Stderr, "failed to enable diagnostics log output: %v\n", diagnosticsLogErr)
	}

	return &Logger{
		Logger:      logger,
		name:        name,
		atomicLevel: consoleAtomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

func (l *Logger) WithName(name string) *Logger {
	l.Logger = l.Logger.WithName(name)
	return l
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Flush() {
	l.flush()
}

// Add verbosity flag to enable setting stderr log levels
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := NewLevelFlagValue(func(level zapcore.Level) {
		l.SetLevel(level)
	})
	fs.VarP(&levelVal, VerbosityFlagName, verbosityFlagShortName, "Logging verbosity level (e.g. -v=debug). Can be one of 'debug', 'info', or 'error', or any positive integer corresponding to increasing levels of debug verbosity.")
}

var errDiagnosticsLogNotEnabled = errors.New("diagnostics log not enabled")

func getDiagnosticsLogCore(name string, encoderConfig zapcore.EncoderConfig) (zapcore.Core, error) {
	levelValue, found := os.LookupEnv(MCP_WINDBG_LOG_LEVEL)
	if !found {
		return nil, errDiagnosticsLogNotEnabled
	}

	logLevel, err := StringToLevel(levelValue, zapcore.ErrorLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %v", levelValue)
	}

	logFolder, found := os.LookupEnv(MCP_WINDBG_LOG_FOLDER)
	if !found {
		logFolder = defaultLogPath
	}
	if err := os.MkdirAll(logFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create the log folder '%s': %w", logFolder, err)
	}

	logName := fmt.Sprintf("%s-%d.log", name, os.Getpid())
	logOutput, err := os.OpenFile(
		filepath.Join(logFolder, logName),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0o600,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	// Format the diagnostics log to be machine readable
	logEncoder := zapcore.NewJSONEncoder(encoderConfig)

	return zapcore.NewCore(logEncoder, zapcore.AddSync(logOutput), zap.NewAtomicLevelAt(logLevel)), nil
}
