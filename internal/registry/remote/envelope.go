// Package remote 는 노드 간 channelRemote RPC 를 다룬다.
// 호출측(Invoker)과 수신측(Handler, Deliverer)이 같은 Envelope 형식을 공유한다.
package remote

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// channelRemote RPC 라우팅 상수.
const (
	Namespace         = "sys"
	Service           = "channelRemote"
	MethodPushMessage = "pushMessage"
)

// ErrUnknownMethod: namespace/service/method 조합을 처리할 수 없을 때 반환된다.
var ErrUnknownMethod = errors.New("unknown remote method")

// Envelope: 원격 호출 메시지. Args 는 메서드별 위치 인자이다.
type Envelope struct {
	Namespace string            `json:"namespace"`
	Service   string            `json:"service"`
	Method    string            `json:"method"`
	Args      []json.RawMessage `json:"args"`
}

// Path: HTTP 전송 시 사용하는 경로 (/rpc/{namespace}/{service}/{method})
func (e Envelope) Path() string {
	return "/rpc/" + e.Namespace + "/" + e.Service + "/" + e.Method
}

// PushOptions: pushMessage 네 번째 인자
type PushOptions struct {
	IsPush bool `json:"isPush"`
}

// PushArgs: pushMessage 인자를 풀어놓은 형태
type PushArgs struct {
	Route   string
	Payload json.RawMessage
	UIDs    []string
	Options PushOptions
}

// PushResult: pushMessage 응답. 전달하지 못한 uid 목록을 담는다.
type PushResult struct {
	FailIDs []string `json:"failIds"`
}

// NewPushEnvelope: [route, payload, uids, {isPush: true}] 인자를 가진 pushMessage Envelope 를 만든다.
func NewPushEnvelope(route string, payload json.RawMessage, uids []string) (Envelope, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return Envelope{}, errors.New("push payload is not valid json")
	}

	args := make([]json.RawMessage, 0, 4)
	for _, v := range []any{route, payload, uids, PushOptions{IsPush: true}} {
		raw, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode push args failed: %w", err)
		}
		args = append(args, raw)
	}

	return Envelope{
		Namespace: Namespace,
		Service:   Service,
		Method:    MethodPushMessage,
		Args:      args,
	}, nil
}

// IsPushMessage: channelRemote.pushMessage 호출인지 확인한다.
func (e Envelope) IsPushMessage() bool {
	return e.Namespace == Namespace && e.Service == Service && e.Method == MethodPushMessage
}

// DecodePush: pushMessage 인자를 해석한다. options 인자는 생략될 수 있다.
func (e Envelope) DecodePush() (PushArgs, error) {
	if !e.IsPushMessage() {
		return PushArgs{}, fmt.Errorf("%w: %s.%s.%s", ErrUnknownMethod, e.Namespace, e.Service, e.Method)
	}
	if len(e.Args) < 3 {
		return PushArgs{}, fmt.Errorf("pushMessage expects at least 3 args, got %d", len(e.Args))
	}

	var args PushArgs
	if err := json.Unmarshal(e.Args[0], &args.Route); err != nil {
		return PushArgs{}, fmt.Errorf("decode route failed: %w", err)
	}
	args.Payload = e.Args[1]
	if err := json.Unmarshal(e.Args[2], &args.UIDs); err != nil {
		return PushArgs{}, fmt.Errorf("decode uids failed: %w", err)
	}
	if len(e.Args) > 3 {
		if err := json.Unmarshal(e.Args[3], &args.Options); err != nil {
			return PushArgs{}, fmt.Errorf("decode options failed: %w", err)
		}
	}
	return args, nil
}
