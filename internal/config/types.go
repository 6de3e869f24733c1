package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 兼容纯秒整数与 Go Duration 字符串（"30s"、"5m"）两种写法。
type Duration time.Duration

// UnmarshalText lets viper decode "30s", "5m" or bare seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the value as a time.Duration.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Volume types.
const (
	VolumeFilesystem = "filesystem"
	VolumeNull       = "null"
	VolumeRedis      = "redis"
)

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort          int      `mapstructure:"ListenPort"`
	LogLevel            string   `mapstructure:"LogLevel"`
	LogFilePath         string   `mapstructure:"LogFilePath"`
	LogMaxSize          int      `mapstructure:"LogMaxSize"`
	LogMaxBackups       int      `mapstructure:"LogMaxBackups"`
	LogCompress         bool     `mapstructure:"LogCompress"`
	LongTermStoragePath string   `mapstructure:"LongTermStoragePath"`
	RestorePrefix       string   `mapstructure:"RestorePrefix"`
	RestoreTimeout      Duration `mapstructure:"RestoreTimeout"`
}

// VolumeConfig describes one cache volume.
type VolumeConfig struct {
	Name     string `mapstructure:"Name"`
	Type     string `mapstructure:"Type"`
	Path     string `mapstructure:"Path"`
	RedisURL string `mapstructure:"RedisURL"`
	Capacity int64  `mapstructure:"Capacity"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Volumes []VolumeConfig `mapstructure:"Volume"`
}

// VolumeTypes summarizes the configured volume types for startup logs.
func VolumeTypes(volumes []VolumeConfig) map[string]int {
	out := make(map[string]int, len(volumes))
	for _, v := range volumes {
		out[v.Type]++
	}
	return out
}
