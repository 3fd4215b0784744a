// Package mq 는 Valkey Streams 발행 헬퍼를 제공한다.
package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
)

// ErrEmptyMessage: 발행할 필드가 없을 때 반환되는 에러
var ErrEmptyMessage = errors.New("no values to publish")

// StreamPublisherConfig: 스트림 발행 설정 (최대 길이)
type StreamPublisherConfig struct {
	MaxLen int64
}

// Message: 하나의 XADD 항목입니다.
type Message struct {
	Stream string
	Values map[string]string
}

// StreamPublisher: Valkey 스트림으로 메시지를 발행(XADD)한다.
type StreamPublisher struct {
	client valkey.Client
	logger *slog.Logger
	cfg    StreamPublisherConfig
}

// NewStreamPublisher: 새로운 StreamPublisher 인스턴스를 생성한다.
func NewStreamPublisher(client valkey.Client, logger *slog.Logger, cfg StreamPublisherConfig) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		logger: logger,
		cfg:    cfg,
	}
}

// Publish: 단일 메시지를 XADD 로 발행하고 항목 ID 를 반환한다.
func (p *StreamPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	ids, err := p.PublishBatch(ctx, []Message{msg})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// PublishBatch: 여러 메시지를 한 번의 파이프라인(DoMulti)으로 발행한다.
// 반환되는 ID 슬라이스는 입력 순서를 따르며, 실패한 항목은 빈 문자열이다.
// 하나라도 실패하면 첫 번째 에러를 함께 반환한다.
func (p *StreamPublisher) PublishBatch(ctx context.Context, msgs []Message) ([]string, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	cmds := make(valkey.Commands, 0, len(msgs))
	for _, msg := range msgs {
		if len(msg.Values) == 0 {
			return nil, fmt.Errorf("%w stream=%s", ErrEmptyMessage, msg.Stream)
		}
		cmds = append(cmds, p.client.B().Arbitrary("XADD").Keys(msg.Stream).Args(p.xaddArgs(msg.Values)...).Build())
	}

	ids := make([]string, len(msgs))
	var firstErr error
	for i, resp := range p.client.DoMulti(ctx, cmds...) {
		id, err := resp.ToString()
		if err != nil {
			if firstErr == nil {
				firstErr = valkeyx.WrapRedisKeyError("xadd", msgs[i].Stream, err)
			}
			continue
		}
		ids[i] = id
		p.logger.Debug("message_published", "stream", msgs[i].Stream, "id", id)
	}
	return ids, firstErr
}

func (p *StreamPublisher) xaddArgs(values map[string]string) []string {
	args := make([]string, 0, len(values)*2+4)
	if p.cfg.MaxLen > 0 {
		args = append(args, "MAXLEN", "~", strconv.FormatInt(p.cfg.MaxLen, 10))
	}
	args = append(args, "*")

	// 필드 순서를 고정해 소비자 쪽 디버깅을 쉽게 한다.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, values[k])
	}
	return args
}
