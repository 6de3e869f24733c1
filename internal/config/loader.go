package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Volumes {
		applyVolumeDefaults(&cfg.Volumes[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(cfg.Global.LongTermStoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析长期存储目录: %w", err)
	}
	cfg.Global.LongTermStoragePath = abs
	for i := range cfg.Volumes {
		if cfg.Volumes[i].Type != VolumeFilesystem {
			continue
		}
		abs, err := filepath.Abs(cfg.Volumes[i].Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", volumeField(cfg.Volumes[i].Name, "Path"), err)
		}
		cfg.Volumes[i].Path = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8083)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("LongTermStoragePath", "./ltstore")
	v.SetDefault("RestorePrefix", "")
	v.SetDefault("RestoreTimeout", "10m")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8083
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	if g.RestoreTimeout.DurationValue() == 0 {
		g.RestoreTimeout = Duration(10 * time.Minute)
	}
}

func applyVolumeDefaults(vc *VolumeConfig) {
	vc.Name = strings.TrimSpace(vc.Name)
	vc.Type = strings.ToLower(strings.TrimSpace(vc.Type))
	if vc.Type == "" {
		vc.Type = VolumeFilesystem
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
