package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if strings.TrimSpace(g.LongTermStoragePath) == "" {
		return newFieldError("Global.LongTermStoragePath", "不能为空")
	}
	if g.RestoreTimeout.DurationValue() <= 0 {
		return newFieldError("Global.RestoreTimeout", "必须大于 0")
	}

	if len(c.Volumes) == 0 {
		return errors.New("至少需要配置一个 Volume")
	}

	seen := map[string]struct{}{}
	for i := range c.Volumes {
		vol := &c.Volumes[i]
		if vol.Name == "" {
			return newFieldError("Volume[].Name", "不能为空")
		}
		if _, exists := seen[vol.Name]; exists {
			return newFieldError(volumeField(vol.Name, "Name"), "重复")
		}
		seen[vol.Name] = struct{}{}

		if vol.Capacity < 0 {
			return newFieldError(volumeField(vol.Name, "Capacity"), "不能为负数")
		}

		switch vol.Type {
		case VolumeFilesystem:
			if strings.TrimSpace(vol.Path) == "" {
				return newFieldError(volumeField(vol.Name, "Path"), "filesystem 卷必须提供 Path")
			}
		case VolumeRedis:
			if err := validateRedisURL(vol.RedisURL); err != nil {
				return fmt.Errorf("%s: %w", volumeField(vol.Name, "RedisURL"), err)
			}
		case VolumeNull:
		default:
			return newFieldError(volumeField(vol.Name, "Type"), "仅支持 filesystem|null|redis")
		}
	}

	return nil
}

func validateRedisURL(raw string) error {
	if raw == "" {
		return errors.New("缺少 Redis 地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "redis" && parsed.Scheme != "rediss" {
		return fmt.Errorf("仅支持 redis/rediss: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
