package logger

import (
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
	"go.uber.org/zap"
)

func ProvideLoggerMiddleware(cfg *manifest.Config) *Middleware {
	return NewMiddleware(NewLog("admin-access.log", cfg.Log.ZapLevel()))
}

func ProvideLogger(cfg *manifest.Config) *zap.Logger {
	return NewLog(cfg.Log.File, cfg.Log.ZapLevel())
}
