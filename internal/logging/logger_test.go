package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oar-dist/oar-dist/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "oar-dist.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oar-dist.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestRestoreFields(t *testing.T) {
	fields := RestoreFields("goober.mbag0_2-0.zip", "disk", "abc")
	if fields["object_id"] != "goober.mbag0_2-0.zip" || fields["volume"] != "disk" || fields["attempt"] != "abc" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["action"] != "restore" {
		t.Fatalf("restore fields should carry action=restore")
	}
}

func TestServiceHookStampsEntries(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("action", "probe").Info("hello")
	if !strings.Contains(buf.String(), `"service":"oar-dist"`) {
		t.Fatalf("expected service field, got %s", buf.String())
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := Discard()
	logger.Info("dropped")
	if logger.Out == os.Stdout {
		t.Fatalf("discard logger must not write to stdout")
	}
}
