// Package httpserver 는 http.Server 생성(h2c 옵션 포함)과 graceful shutdown 실행을 담당한다.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	commonconfig "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/config"
)

// ServerOptions: http.Server 튜닝 옵션
type ServerOptions struct {
	UseH2C            bool
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// OptionsFromTuning: 공통 튜닝 설정으로 ServerOptions 를 만든다.
// 노드 간 RPC 는 TLS 없는 HTTP/2 를 쓰므로 h2c 를 함께 켤 수 있다.
func OptionsFromTuning(cfg commonconfig.ServerTuningConfig, useH2C bool) ServerOptions {
	return ServerOptions{
		UseH2C:            useH2C,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// NewServer: 옵션이 적용된 http.Server 를 생성한다.
func NewServer(addr string, handler http.Handler, opts ServerOptions) *http.Server {
	if handler == nil {
		handler = http.NewServeMux()
	}
	if opts.UseH2C {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	readHeaderTimeout := opts.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if opts.IdleTimeout > 0 {
		server.IdleTimeout = opts.IdleTimeout
	}
	if opts.MaxHeaderBytes > 0 {
		server.MaxHeaderBytes = opts.MaxHeaderBytes
	}
	return server
}

// Serve: HTTP 서버를 시작하고 ctx 가 끝나면 shutdownTimeout 안에서 graceful shutdown 한다.
func Serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server listen failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped with error: %w", err)
		}
		return nil
	}
}
