package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
LongTermStoragePath = "./ltstore"
RestoreTimeout = "boom"

[[Volume]]
Name = "disk"
Type = "filesystem"
Path = "./cache"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsDuration(t *testing.T) {
	cfg := `
LongTermStoragePath = "./ltstore"
RestoreTimeout = 90

[[Volume]]
Name = "probe"
Type = "null"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.RestoreTimeout.DurationValue() != 90*time.Second {
		t.Fatalf("整数秒应被解析, got %v", loaded.Global.RestoreTimeout.DurationValue())
	}
}

func TestLoadResolvesAbsolutePaths(t *testing.T) {
	loaded, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if !filepath.IsAbs(loaded.Global.LongTermStoragePath) {
		t.Fatalf("LongTermStoragePath 应为绝对路径: %s", loaded.Global.LongTermStoragePath)
	}
	if !filepath.IsAbs(loaded.Volumes[0].Path) {
		t.Fatalf("filesystem 卷路径应为绝对路径: %s", loaded.Volumes[0].Path)
	}
	if loaded.Volumes[1].Path != "" {
		t.Fatalf("null 卷不应被赋予路径")
	}
}
