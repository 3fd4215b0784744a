package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/mq"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/telemetry"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/valkeyx"
)

// 스트림 메시지 필드 이름.
const (
	FieldUID     = "uid"
	FieldRoute   = "route"
	FieldPayload = "payload"
)

// Publisher: 스트림 발행 추상화 (mq.StreamPublisher 가 만족한다)
type Publisher interface {
	PublishBatch(ctx context.Context, msgs []mq.Message) ([]string, error)
}

// StreamDeliverer: uid 마다 {prefix}:{serverID} 스트림에 XADD 하는 Deliverer.
// 실제 소켓 전달은 스트림을 소비하는 연결 게이트웨이가 담당한다.
type StreamDeliverer struct {
	publisher Publisher
	stream    string
	logger    *slog.Logger
}

// NewStreamDeliverer: StreamDeliverer 를 생성한다.
func NewStreamDeliverer(publisher Publisher, streamPrefix, serverID string, logger *slog.Logger) *StreamDeliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamDeliverer{
		publisher: publisher,
		stream:    valkeyx.BuildKey(streamPrefix, serverID),
		logger:    logger,
	}
}

// Stream: 발행 대상 스트림 키
func (d *StreamDeliverer) Stream() string { return d.stream }

// Deliver: uid 별 메시지를 한 번의 파이프라인으로 발행한다. 발행되지 않은 uid 를 반환한다.
func (d *StreamDeliverer) Deliver(ctx context.Context, route string, payload []byte, uids []string) ([]string, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	trace := telemetry.InjectMap(ctx)
	msgs := make([]mq.Message, 0, len(uids))
	for _, uid := range uids {
		values := make(map[string]string, 3+len(trace))
		for k, v := range trace {
			values[k] = v
		}
		values[FieldUID] = uid
		values[FieldRoute] = route
		values[FieldPayload] = string(payload)
		msgs = append(msgs, mq.Message{Stream: d.stream, Values: values})
	}

	ids, err := d.publisher.PublishBatch(ctx, msgs)
	if len(ids) != len(uids) {
		if err == nil {
			err = fmt.Errorf("publisher returned %d ids for %d messages", len(ids), len(uids))
		}
		return append([]string(nil), uids...), err
	}

	var failed []string
	for i, id := range ids {
		if id == "" {
			failed = append(failed, uids[i])
		}
	}
	if len(failed) > 0 {
		d.logger.Warn("stream_deliver_partial", "stream", d.stream, "failed", len(failed), "err", err)
	}
	return failed, err
}
