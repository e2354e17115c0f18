package logging

import (
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/guildgate/internal/config"
)

func TestNewWritesJSONLines(t *testing.T) {
	projectDir := t.TempDir()
	if err := config.InitDir(projectDir); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("application submitted", zap.String("request_id", "req-1"))
	logger.Debug("below threshold")
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(cfg.LogFilePath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"application submitted"`) {
		t.Fatalf("missing message in log: %s", content)
	}
	if !strings.Contains(content, `"request_id":"req-1"`) {
		t.Fatalf("missing field in log: %s", content)
	}
	if strings.Contains(content, "below threshold") {
		t.Fatalf("debug line should be filtered at info level")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"chatty":  zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNopCloseIsSafe(t *testing.T) {
	if err := Nop().Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
	var nilLogger *Logger
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
