// Package logger wires up a zap.Logger for the storage engine: level
// parsing, console-vs-JSON encoding, and file-vs-stream output, all
// driven by a single YAML-friendly Config.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how New builds a logger.
type Config struct {
	// Level is the minimum level emitted: "debug", "info", "warn", "error".
	// Anything unparseable falls back to "info".
	Level string `yaml:"level"`
	// Format is "json" (default) or "console".
	Format string `yaml:"format"`
	// OutputFile is a path, or the special values "stdout"/"stderr". Empty
	// defaults to stdout.
	OutputFile string `yaml:"output_file"`
}

// New builds a *zap.Logger from config. Every record carries a
// "service" field so log lines from an embedded engine can be told
// apart from the host process's own logging.
func New(config Config) (*zap.Logger, error) {
	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(buildEncoder(config.Format), sink, parseLevel(config.Level))
	return zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", "emberdb-storage"))), nil
}

func parseLevel(raw string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

func buildEncoder(format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}

func openSink(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", outputFile, err)
	}
	return zapcore.AddSync(file), nil
}
