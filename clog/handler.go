package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// clogHandler 封装 slog.Handler，持有可动态调整的级别
type clogHandler struct {
	slog.Handler
	levelVar *slog.LevelVar
}

func newHandler(config *Config, opts *options) (*clogHandler, error) {
	w, err := resolveWriter(config, opts)
	if err != nil {
		return nil, err
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(level))

	handlerOpts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: newReplaceAttr(config),
	}

	var h slog.Handler
	if strings.EqualFold(config.Format, "json") {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return &clogHandler{Handler: h, levelVar: levelVar}, nil
}

func resolveWriter(config *Config, opts *options) (io.Writer, error) {
	if opts != nil && opts.buffer != nil {
		return opts.buffer, nil
	}

	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		if dir := filepath.Dir(config.Output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	}
}

func newReplaceAttr(config *Config) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.TimeKey:
			return slog.String(slog.TimeKey, a.Value.Time().Format(timeFormat))
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok {
				return slog.String(slog.LevelKey, strings.ToUpper(Level(lvl).String()))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSourcePath(src.File, config.SourceRoot), src.Line))
			}
		}
		return a
	}
}

// trimSourcePath 裁剪掉 root 之前的路径，root 为空时保留最后两级
func trimSourcePath(file, root string) string {
	if root != "" {
		if idx := strings.Index(file, root); idx >= 0 {
			return strings.TrimPrefix(file[idx+len(root):], "/")
		}
	}
	dir, base := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), base)
}
