package remote

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotFrontend: frontend 가 아닌 노드가 pushMessage 를 받았을 때 반환된다.
var ErrNotFrontend = errors.New("node is not a frontend server")

// Deliverer: 이 노드에 연결된 클라이언트에게 메시지를 전달한다. 전달하지 못한 uid 를 반환한다.
type Deliverer interface {
	Deliver(ctx context.Context, route string, payload []byte, uids []string) ([]string, error)
}

// Handler: channelRemote 수신측. 전송 계층(httpapi)과 무관하게 Envelope 를 처리한다.
type Handler struct {
	deliverer  Deliverer
	isFrontend func() bool
	logger     *slog.Logger
}

// NewHandler: Handler 를 생성한다. isFrontend 가 nil 이면 항상 frontend 로 본다.
func NewHandler(deliverer Deliverer, isFrontend func() bool, logger *slog.Logger) *Handler {
	if isFrontend == nil {
		isFrontend = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{deliverer: deliverer, isFrontend: isFrontend, logger: logger}
}

// Handle: pushMessage Envelope 를 처리한다.
// Deliverer 전체 실패 시에도 대상 uid 전부를 FailIDs 로 돌려주어 호출측이 집계할 수 있게 한다.
func (h *Handler) Handle(ctx context.Context, env Envelope) (PushResult, error) {
	args, err := env.DecodePush()
	if err != nil {
		return PushResult{}, err
	}
	if !h.isFrontend() {
		return PushResult{}, ErrNotFrontend
	}
	if len(args.UIDs) == 0 {
		return PushResult{FailIDs: []string{}}, nil
	}

	failed, err := h.deliverer.Deliver(ctx, args.Route, args.Payload, args.UIDs)
	if err != nil {
		h.logger.Warn("remote_push_deliver_failed", "route", args.Route, "uid_count", len(args.UIDs), "err", err)
		if len(failed) == 0 {
			failed = args.UIDs
		}
	}
	if failed == nil {
		failed = []string{}
	}
	h.logger.Debug("remote_push_handled", "route", args.Route, "uid_count", len(args.UIDs), "failed", len(failed))
	return PushResult{FailIDs: failed}, nil
}
