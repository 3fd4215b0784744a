package httpapi

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware: 요청 로그를 남긴다. 정상 요청은 DEBUG, 4xx 는 WARN, 5xx 는 ERROR.
// skipPaths 는 정확히 일치하거나 "prefix*" 형태로 지정한다.
func LoggerMiddleware(logger *slog.Logger, skipPaths ...string) gin.HandlerFunc {
	exact := make(map[string]bool, len(skipPaths))
	var prefixes []string
	for _, p := range skipPaths {
		if len(p) > 1 && strings.HasSuffix(p, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		exact[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if exact[path] || hasAnyPrefix(path, prefixes) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		ctx := c.Request.Context()
		if !logger.Enabled(ctx, level) {
			return
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.String("ip", c.ClientIP()),
		}
		// 느린 요청(100ms+)만 레이턴시 포함
		if latency >= 100*time.Millisecond {
			attrs = append(attrs, slog.Duration("latency", latency))
		}
		logger.LogAttrs(ctx, level, "http_request", attrs...)
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
