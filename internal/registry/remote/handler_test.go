package remote

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/testhelper"
)

type fakeDeliverer struct {
	gotRoute   string
	gotPayload string
	gotUIDs    []string
	failed     []string
	err        error
}

func (f *fakeDeliverer) Deliver(_ context.Context, route string, payload []byte, uids []string) ([]string, error) {
	f.gotRoute, f.gotPayload, f.gotUIDs = route, string(payload), uids
	return f.failed, f.err
}

func TestHandler_Handle(t *testing.T) {
	env, err := NewPushEnvelope("onChat", json.RawMessage(`{"m":1}`), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("build envelope failed: %v", err)
	}
	ctx := context.Background()

	t.Run("delivers", func(t *testing.T) {
		d := &fakeDeliverer{failed: []string{"u2"}}
		h := NewHandler(d, nil, testhelper.NewDiscardLogger())
		res, err := h.Handle(ctx, env)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.gotRoute != "onChat" || d.gotPayload != `{"m":1}` || len(d.gotUIDs) != 2 {
			t.Fatalf("deliverer got unexpected input: %+v", d)
		}
		if len(res.FailIDs) != 1 || res.FailIDs[0] != "u2" {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("all_delivered_is_empty_not_nil", func(t *testing.T) {
		h := NewHandler(&fakeDeliverer{}, nil, testhelper.NewDiscardLogger())
		res, err := h.Handle(ctx, env)
		if err != nil || res.FailIDs == nil || len(res.FailIDs) != 0 {
			t.Fatalf("expected empty fail list, got %+v (err=%v)", res, err)
		}
	})

	t.Run("deliverer_error_fails_all", func(t *testing.T) {
		h := NewHandler(&fakeDeliverer{err: errors.New("stream down")}, nil, testhelper.NewDiscardLogger())
		res, err := h.Handle(ctx, env)
		if err != nil {
			t.Fatalf("deliverer failure must be reported as fail ids: %v", err)
		}
		if len(res.FailIDs) != 2 {
			t.Fatalf("expected all uids failed, got %+v", res)
		}
	})

	t.Run("not_frontend", func(t *testing.T) {
		h := NewHandler(&fakeDeliverer{}, func() bool { return false }, testhelper.NewDiscardLogger())
		if _, err := h.Handle(ctx, env); !errors.Is(err, ErrNotFrontend) {
			t.Fatalf("expected ErrNotFrontend, got %v", err)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		h := NewHandler(&fakeDeliverer{}, nil, testhelper.NewDiscardLogger())
		bad := env
		bad.Method = "broadcast"
		if _, err := h.Handle(ctx, bad); !errors.Is(err, ErrUnknownMethod) {
			t.Fatalf("expected ErrUnknownMethod, got %v", err)
		}
	})
}
