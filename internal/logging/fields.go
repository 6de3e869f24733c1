package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RestoreFields 提供对象/卷/尝试编号字段，供恢复流程日志复用。
func RestoreFields(objectID, volume, attempt string) logrus.Fields {
	return logrus.Fields{
		"action":    "restore",
		"object_id": objectID,
		"volume":    volume,
		"attempt":   attempt,
	}
}

// RequestFields 提供请求级字段，供 HTTP 层日志复用。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}
