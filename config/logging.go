package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger 按日志配置构建 zap logger。
func (c LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, NewError(ErrInvalidValue, "log.level", "unparseable level").WithCause(err)
	}

	var zapConfig zap.Config
	if c.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if len(c.OutputPaths) > 0 {
		zapConfig.OutputPaths = c.OutputPaths
	}
	zapConfig.DisableCaller = !c.EnableCaller
	zapConfig.DisableStacktrace = !c.EnableStacktrace
	return zapConfig.Build()
}
