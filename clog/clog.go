// Package clog 为注册组件提供基于 slog 的结构化日志。
//
// 特性：
//   - 抽象 Logger 接口，不暴露底层 slog 实现
//   - 层级命名空间（registry、connector 等组件会自动追加）
//   - 支持 Context 字段提取
//   - 函数式选项
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger.Info("uri registered", clog.String("path", path))
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}
