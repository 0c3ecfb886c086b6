package clog

import (
	"log/slog"
	"time"
)

// Field 是 slog.Attr 的类型别名
type Field = slog.Attr

// NamespaceKey 日志中命名空间的字段名
const NamespaceKey = "namespace"

func String(k, v string) Field {
	return slog.String(k, v)
}

func Strings(k string, v []string) Field {
	return slog.Any(k, v)
}

func Int(k string, v int) Field {
	return slog.Int(k, v)
}

func Int64(k string, v int64) Field {
	return slog.Int64(k, v)
}

func Bool(k string, v bool) Field {
	return slog.Bool(k, v)
}

func Duration(k string, v time.Duration) Field {
	return slog.Duration(k, v)
}

func Time(k string, v time.Time) Field {
	return slog.Time(k, v)
}

func Any(k string, v any) Field {
	return slog.Any(k, v)
}

// Error 只输出错误消息：err_msg="..."
//
//	logger.Error("persist uri failed", clog.Error(err))
func Error(err error) Field {
	if err == nil {
		return slog.String("", "")
	}
	return slog.String("err_msg", err.Error())
}

// ErrorWithCode 输出嵌套结构 error={msg="...", code="..."}
func ErrorWithCode(err error, code string) Field {
	if err == nil {
		return slog.Group("error", slog.String("code", code))
	}
	return slog.Group("error",
		slog.String("msg", err.Error()),
		slog.String("code", code),
	)
}
