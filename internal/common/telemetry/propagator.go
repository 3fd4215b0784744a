package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectContext: context 의 trace context 를 carrier 에 주입합니다.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext: carrier 에서 부모 trace context 를 복원한 새 context 를 반환합니다.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectMap: trace context 를 새 map 으로 직렬화합니다. 전파할 값이 없으면 빈 map 입니다.
// 스트림 메시지 필드에 그대로 합쳐 사용합니다.
func InjectMap(ctx context.Context) map[string]string {
	carrier := MapCarrier{}
	InjectContext(ctx, carrier)
	return carrier
}

// MapCarrier: map[string]string 을 TextMapCarrier 로 사용할 수 있게 해주는 어댑터입니다.
type MapCarrier map[string]string

// Get: 주어진 키의 값을 반환합니다.
func (c MapCarrier) Get(key string) string {
	return c[key]
}

// Set: 주어진 키에 값을 설정합니다.
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// Keys: 모든 키를 반환합니다.
func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
