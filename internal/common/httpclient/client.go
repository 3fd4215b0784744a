// Package httpclient 는 노드 간 RPC 에 쓰는 http.Client 를 생성한다.
package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
)

// Config: HTTP 클라이언트 설정
type Config struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// HTTP2Enabled: TLS 없이 HTTP/2(h2c prior knowledge)로 연결한다. 상대 서버도 h2c 여야 한다.
	HTTP2Enabled bool
	// Tracing: otelhttp transport 로 감싸 span 생성과 traceparent 헤더 전파를 켠다.
	Tracing bool
}

// New: 설정에 맞는 http.Client 를 생성한다.
func New(cfg Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var transport http.RoundTripper
	if cfg.HTTP2Enabled {
		transport = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		}
	} else {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	if cfg.Tracing {
		transport = otelhttp.NewTransport(transport)
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}
