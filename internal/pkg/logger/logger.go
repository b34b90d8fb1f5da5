// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是进程级的基础 logger，Init 之前也可以直接使用
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 配置全局 zerolog：服务名、日志级别、时间格式
func Init(serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	zlog.Logger = Logger
}

// Ctx 返回带有 trace_id / span_id 的 logger。
// 如果 context 中已经注入过 logger（中间件），优先使用它。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger
	if fromCtx := zerolog.Ctx(ctx); fromCtx != nil && fromCtx.GetLevel() != zerolog.Disabled {
		l = *fromCtx
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		l = l.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}
	return &l
}
