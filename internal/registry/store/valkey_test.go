package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"

	cerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/testhelper"
)

func newTestStore(t *testing.T) (*ValkeyStore, *miniredis.Miniredis) {
	t.Helper()
	mr, client := testhelper.NewMiniValkey(t)
	return NewValkeyStore(client, testhelper.NewDiscardLogger()), mr
}

func TestValkeyStore_HashOps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SetMember(ctx, "h", "u1", "srvA"); err != nil {
		t.Fatalf("set member failed: %v", err)
	}
	if err := s.SetMember(ctx, "h", "u2", "srvB"); err != nil {
		t.Fatalf("set member failed: %v", err)
	}

	v, ok, err := s.GetMember(ctx, "h", "u1")
	if err != nil || !ok || v != "srvA" {
		t.Fatalf("get member: got (%q, %v, %v)", v, ok, err)
	}
	_, ok, err = s.GetMember(ctx, "h", "missing")
	if err != nil || ok {
		t.Fatalf("missing field should be (\"\", false, nil), got ok=%v err=%v", ok, err)
	}

	n, err := s.MappingLen(ctx, "h")
	if err != nil || n != 2 {
		t.Fatalf("mapping len: got %d err=%v", n, err)
	}

	if err := s.DelMember(ctx, "h", "u1"); err != nil {
		t.Fatalf("del member failed: %v", err)
	}
	m, err := s.Mapping(ctx, "h")
	if err != nil {
		t.Fatalf("mapping failed: %v", err)
	}
	if len(m) != 1 || m["u2"] != "srvB" {
		t.Fatalf("unexpected mapping: %v", m)
	}

	empty, err := s.Mapping(ctx, "nope")
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing hash should be empty, got %v err=%v", empty, err)
	}
}

func TestValkeyStore_SetOps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, uid := range []string{"u1", "u2", "u1"} {
		if err := s.AddToSet(ctx, "s", uid); err != nil {
			t.Fatalf("add to set failed: %v", err)
		}
	}
	if err := s.RemoveFromSet(ctx, "s", "u2"); err != nil {
		t.Fatalf("remove from set failed: %v", err)
	}

	members, err := s.MembersOfSet(ctx, "s")
	if err != nil {
		t.Fatalf("members failed: %v", err)
	}
	if len(members) != 1 || members[0] != "u1" {
		t.Fatalf("unexpected members: %v", members)
	}

	ok, err := s.HasKey(ctx, "s")
	if err != nil || !ok {
		t.Fatalf("has key: %v %v", ok, err)
	}
	ok, err = s.HasKey(ctx, "other")
	if err != nil || ok {
		t.Fatalf("has key for missing: %v %v", ok, err)
	}
}

func TestValkeyStore_ScanAndDelete(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"reg:c#a", "reg:c#b", "reg:u#x", "other:c#a"} {
		if _, err := mr.SetAdd(k, "v"); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	var found []string
	err := s.ScanKeysByPrefix(ctx, "reg:", 1, func(keys []string) error {
		found = append(found, keys...)
		return nil
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	sort.Strings(found)
	if len(found) != 3 || found[0] != "reg:c#a" || found[2] != "reg:u#x" {
		t.Fatalf("unexpected scan result: %v", found)
	}

	n, err := s.DeleteKeys(ctx, found...)
	if err != nil || n != 3 {
		t.Fatalf("delete keys: n=%d err=%v", n, err)
	}
	if !mr.Exists("other:c#a") {
		t.Fatal("key outside prefix must survive")
	}

	n, err = s.DeleteKeys(ctx)
	if err != nil || n != 0 {
		t.Fatalf("delete with no keys should be no-op, got %d %v", n, err)
	}
}

func TestValkeyStore_ScanHandlerErrorStops(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Set("reg:a", "1")

	stop := errors.New("stop")
	err := s.ScanKeysByPrefix(context.Background(), "reg:", 10, func([]string) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestValkeyStore_Apply(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	err := s.Apply(ctx, []Op{
		SetMember("c", "u1", "srvA"),
		AddToSet("s:srvA", "u1"),
		SetMember("u", "lobby", "srvA"),
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := mr.HGet("c", "u1"); got != "srvA" {
		t.Fatalf("expected c.u1=srvA, got %q", got)
	}
	if ok, _ := mr.SIsMember("s:srvA", "u1"); !ok {
		t.Fatal("expected u1 in s:srvA")
	}

	err = s.Apply(ctx, []Op{
		RemoveFromSet("s:srvA", "u1"),
		DelMember("c", "u1"),
		DelMember("u", "lobby"),
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if mr.Exists("c") || mr.Exists("s:srvA") || mr.Exists("u") {
		t.Fatal("expected all keys removed")
	}

	if err := s.Apply(ctx, nil); err != nil {
		t.Fatalf("empty apply should be no-op: %v", err)
	}
}

func TestValkeyStore_ApplyReportsWrongType(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Set("c", "plain-string")

	err := s.Apply(context.Background(), []Op{SetMember("c", "u1", "srvA")})
	if err == nil {
		t.Fatal("expected error for WRONGTYPE")
	}
	if !cerrors.IsRedisError(err) {
		t.Fatalf("expected RedisError, got %T", err)
	}
}

func TestValkeyStore_ErrorsWhenClosed(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if err := s.SetMember(context.Background(), "h", "f", "v"); !cerrors.IsRedisError(err) {
		t.Fatalf("expected RedisError after close, got %v", err)
	}
}
