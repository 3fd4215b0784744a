package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/httputil"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/cluster"
	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
)

func TestHTTPInvoker_Invoke(t *testing.T) {
	var gotPath string
	var gotEnv Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotEnv); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set(httputil.HeaderContentType, httputil.ContentTypeJSON)
		_, _ = w.Write([]byte(`{"failIds":["u2"]}`))
	}))
	t.Cleanup(srv.Close)

	env, err := NewPushEnvelope("onChat", json.RawMessage(`"hello"`), []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("build envelope failed: %v", err)
	}

	var result PushResult
	inv := NewHTTPInvoker(srv.Client())
	if err := inv.Invoke(context.Background(), cluster.Server{ID: "srvA", Addr: srv.URL + "/"}, env, &result); err != nil {
		t.Fatalf("invoke failed: %v", err)
	}

	if gotPath != "/rpc/sys/channelRemote/pushMessage" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if !gotEnv.IsPushMessage() || len(gotEnv.Args) != 4 {
		t.Errorf("unexpected envelope: %+v", gotEnv)
	}
	if len(result.FailIDs) != 1 || result.FailIDs[0] != "u2" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHTTPInvoker_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not frontend", http.StatusConflict)
	}))
	t.Cleanup(srv.Close)

	env, _ := NewPushEnvelope("r", nil, []string{"u1"})
	inv := NewHTTPInvoker(srv.Client())

	err := inv.Invoke(context.Background(), cluster.Server{ID: "srvA", Addr: srv.URL}, env, nil)
	var remoteErr rerrors.RemoteInvocationError
	if !errors.As(err, &remoteErr) || remoteErr.ServerID != "srvA" {
		t.Fatalf("expected RemoteInvocationError for srvA, got %v", err)
	}
	var statusErr httputil.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected wrapped StatusError 409, got %v", err)
	}

	err = inv.Invoke(context.Background(), cluster.Server{ID: "srvB"}, env, nil)
	if !errors.As(err, &remoteErr) || remoteErr.ServerID != "srvB" {
		t.Fatalf("expected RemoteInvocationError for missing addr, got %v", err)
	}
}
