package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/httputil"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/cluster"
	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
)

// Invoker: 특정 서버로 Envelope 를 보내고 응답을 out 에 디코딩한다.
// 실패는 RemoteInvocationError 로 반환한다.
type Invoker interface {
	Invoke(ctx context.Context, server cluster.Server, env Envelope, out any) error
}

// HTTPInvoker: POST {server.Addr}{env.Path()} 로 Envelope 를 전송하는 Invoker
type HTTPInvoker struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPInvoker: HTTPInvoker 를 생성한다. 타임아웃/추적 설정은 client 가 가진다.
func NewHTTPInvoker(client *http.Client) *HTTPInvoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPInvoker{client: client, maxBytes: httputil.DefaultMaxResponseBytes}
}

// Invoke: Envelope 를 전송한다.
func (i *HTTPInvoker) Invoke(ctx context.Context, server cluster.Server, env Envelope, out any) error {
	if strings.TrimSpace(server.Addr) == "" {
		return rerrors.RemoteInvocationError{ServerID: server.ID, Err: fmt.Errorf("server has no address")}
	}
	url := strings.TrimSuffix(server.Addr, "/") + env.Path()
	if err := httputil.PostJSON(ctx, i.client, url, env, out, i.maxBytes); err != nil {
		return rerrors.RemoteInvocationError{ServerID: server.ID, Err: err}
	}
	return nil
}
