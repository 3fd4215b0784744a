// Package index 는 채널 멤버십 인덱스이다.
// 하나의 멤버십 (channel, uid, server) 을 세 개의 키 패밀리에 투영해 관리한다.
package index

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/store"
)

// Limiter: cleanup 페이지 사이 속도 제한 (rate.Limiter 가 만족한다)
type Limiter interface {
	Wait(ctx context.Context) error
}

// Index: Store 위의 멤버십 인덱스. Store 수명은 호출자가 관리한다.
type Index struct {
	store  store.Store
	keys   Keyspace
	logger *slog.Logger
}

// New: Index 를 생성한다.
func New(st store.Store, keys Keyspace, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: st, keys: keys, logger: logger}
}

// Keys 는 사용 중인 Keyspace 를 반환한다.
func (x *Index) Keys() Keyspace { return x.keys }

func requireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return errors.Join(rerrors.ErrInvalidArgument, errors.New(pairs[i]+" is empty"))
		}
	}
	return nil
}

// Add: uid 를 channel 의 serverID 멤버로 등록한다. 같은 호출을 반복해도 결과는 같다.
// 다른 서버에 이미 등록돼 있으면 이전 (channel, server) 셋에서 먼저 빼고 새로 넣는다.
func (x *Index) Add(ctx context.Context, channel, uid, serverID string) error {
	if err := requireIDs("channel", channel, "uid", uid, "server", serverID); err != nil {
		return err
	}

	channelKey := x.keys.Channel(channel)
	current, found, err := x.store.GetMember(ctx, channelKey, uid)
	if err != nil {
		return rerrors.WrapStore("add", err)
	}

	ops := make([]store.Op, 0, 4)
	switch {
	case found && current == "":
		x.logger.Warn("corrupt_record_overwritten", "err", rerrors.CorruptRecordError{Key: channelKey, Field: uid})
	case found && current != serverID:
		ops = append(ops, store.RemoveFromSet(x.keys.ServerSet(channel, current), uid))
	}
	ops = append(ops,
		store.SetMember(channelKey, uid, serverID),
		store.AddToSet(x.keys.ServerSet(channel, serverID), uid),
		store.SetMember(x.keys.User(uid), channel, serverID),
	)

	if err := x.store.Apply(ctx, ops); err != nil {
		return rerrors.WrapStore("add", err)
	}

	if found && current != "" && current != serverID {
		x.logger.Debug("member_moved", "channel", channel, "uid", uid, "from", current, "to", serverID)
	} else {
		x.logger.Debug("member_added", "channel", channel, "uid", uid, "server_id", serverID)
	}
	return nil
}

// Leave: uid 를 channel 에서 제거한다. serverID 가 비어 있으면 reverse 인덱스로 서버를 찾는다.
// 멤버가 아니면 아무 것도 하지 않는다.
// serverID 가 주어졌지만 기록된 서버와 다르면 해당 서버 셋에서만 제거한다. (이미 이동한 유저 보호)
func (x *Index) Leave(ctx context.Context, channel, uid, serverID string) error {
	if err := requireIDs("channel", channel, "uid", uid); err != nil {
		return err
	}

	userKey := x.keys.User(uid)
	recorded, found, err := x.store.GetMember(ctx, userKey, channel)
	if err != nil {
		return rerrors.WrapStore("leave", err)
	}
	if !found {
		// reverse 가 유실된 경우 forward 로 한 번 더 확인
		recorded, found, err = x.store.GetMember(ctx, x.keys.Channel(channel), uid)
		if err != nil {
			return rerrors.WrapStore("leave", err)
		}
	}

	if serverID == "" {
		if !found {
			return nil
		}
		if recorded == "" {
			x.logger.Warn("corrupt_record_removed", "err", rerrors.CorruptRecordError{Key: userKey, Field: channel})
		}
		serverID = recorded
	}

	ops := make([]store.Op, 0, 3)
	if serverID != "" {
		ops = append(ops, store.RemoveFromSet(x.keys.ServerSet(channel, serverID), uid))
	}
	if !found || recorded == "" || recorded == serverID {
		ops = append(ops,
			store.DelMember(x.keys.Channel(channel), uid),
			store.DelMember(userKey, channel),
		)
	} else {
		x.logger.Debug("leave_stale_server", "channel", channel, "uid", uid, "server_id", serverID, "recorded", recorded)
	}

	if err := x.store.Apply(ctx, ops); err != nil {
		return rerrors.WrapStore("leave", err)
	}
	x.logger.Debug("member_left", "channel", channel, "uid", uid, "server_id", serverID)
	return nil
}

// Members: serverID 가 주어지면 해당 서버 셋의 유저를, 아니면 채널 전체 유저를 반환한다.
func (x *Index) Members(ctx context.Context, channel, serverID string) ([]string, error) {
	if err := requireIDs("channel", channel); err != nil {
		return nil, err
	}

	if serverID != "" {
		members, err := x.store.MembersOfSet(ctx, x.keys.ServerSet(channel, serverID))
		if err != nil {
			return nil, rerrors.WrapStore("members", err)
		}
		sort.Strings(members)
		return members, nil
	}

	mapping, err := x.store.Mapping(ctx, x.keys.Channel(channel))
	if err != nil {
		return nil, rerrors.WrapStore("members", err)
	}
	return sortedKeys(mapping), nil
}

// MembersByServer: 채널 멤버를 서버별로 묶어 반환한다. 서버 값이 깨진 레코드는 건너뛴다.
func (x *Index) MembersByServer(ctx context.Context, channel string) (map[string][]string, error) {
	if err := requireIDs("channel", channel); err != nil {
		return nil, err
	}

	channelKey := x.keys.Channel(channel)
	mapping, err := x.store.Mapping(ctx, channelKey)
	if err != nil {
		return nil, rerrors.WrapStore("members_by_server", err)
	}

	grouped := make(map[string][]string)
	for _, uid := range sortedKeys(mapping) {
		serverID := mapping[uid]
		if serverID == "" {
			x.logger.Warn("corrupt_record_skipped", "err", rerrors.CorruptRecordError{Key: channelKey, Field: uid})
			continue
		}
		grouped[serverID] = append(grouped[serverID], uid)
	}
	return grouped, nil
}

// IsMember: uid 가 channel 에 속해 있는지 확인한다.
func (x *Index) IsMember(ctx context.Context, channel, uid string) (bool, error) {
	if err := requireIDs("channel", channel, "uid", uid); err != nil {
		return false, err
	}
	serverID, found, err := x.store.GetMember(ctx, x.keys.Channel(channel), uid)
	if err != nil {
		return false, rerrors.WrapStore("ismember", err)
	}
	return found && serverID != "", nil
}

// Memberships: uid 의 {channel: serverID} 를 반환한다. 서버 값이 깨진 레코드는 건너뛴다.
func (x *Index) Memberships(ctx context.Context, uid string) (map[string]string, error) {
	if err := requireIDs("uid", uid); err != nil {
		return nil, err
	}

	userKey := x.keys.User(uid)
	mapping, err := x.store.Mapping(ctx, userKey)
	if err != nil {
		return nil, rerrors.WrapStore("memberships", err)
	}
	for channel, serverID := range mapping {
		if serverID == "" {
			x.logger.Warn("corrupt_record_skipped", "err", rerrors.CorruptRecordError{Key: userKey, Field: channel})
			delete(mapping, channel)
		}
	}
	return mapping, nil
}

// ChannelsForUser: uid 가 속한 채널 목록 (정렬됨)
func (x *Index) ChannelsForUser(ctx context.Context, uid string) ([]string, error) {
	mapping, err := x.Memberships(ctx, uid)
	if err != nil {
		return nil, err
	}
	return sortedKeys(mapping), nil
}

// Len: 채널 멤버 수
func (x *Index) Len(ctx context.Context, channel string) (int64, error) {
	if err := requireIDs("channel", channel); err != nil {
		return 0, err
	}
	n, err := x.store.MappingLen(ctx, x.keys.Channel(channel))
	if err != nil {
		return 0, rerrors.WrapStore("len", err)
	}
	return n, nil
}

// Destroy: 채널의 모든 멤버를 순서대로 leave 시킨다. 채널이 없으면 아무 것도 하지 않는다.
// 일부 leave 가 실패해도 나머지는 계속 진행하고, 실패들을 합쳐 반환한다.
func (x *Index) Destroy(ctx context.Context, channel string) error {
	if err := requireIDs("channel", channel); err != nil {
		return err
	}

	channelKey := x.keys.Channel(channel)
	exists, err := x.store.HasKey(ctx, channelKey)
	if err != nil {
		return rerrors.WrapStore("destroy", err)
	}
	if !exists {
		return nil
	}

	mapping, err := x.store.Mapping(ctx, channelKey)
	if err != nil {
		return rerrors.WrapStore("destroy", err)
	}

	var errs []error
	for _, uid := range sortedKeys(mapping) {
		if err := x.Leave(ctx, channel, uid, mapping[uid]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	x.logger.Debug("channel_destroyed", "channel", channel, "members", len(mapping))
	return nil
}

// LeaveAll: uid 를 속한 모든 채널에서 제거하고 제거된 채널 목록을 반환한다.
func (x *Index) LeaveAll(ctx context.Context, uid string) ([]string, error) {
	mapping, err := x.Memberships(ctx, uid)
	if err != nil {
		return nil, err
	}

	left := make([]string, 0, len(mapping))
	var errs []error
	for _, channel := range sortedKeys(mapping) {
		if err := x.Leave(ctx, channel, uid, mapping[channel]); err != nil {
			errs = append(errs, err)
			continue
		}
		left = append(left, channel)
	}
	return left, errors.Join(errs...)
}

// Cleanup: prefix 아래의 모든 레지스트리 키를 페이지(pageSize) 단위로 삭제한다.
// limiter 가 있으면 페이지마다 Wait 한다. 삭제된 키 수를 반환한다.
func (x *Index) Cleanup(ctx context.Context, pageSize int64, limiter Limiter) (int64, error) {
	var deleted int64
	err := x.store.ScanKeysByPrefix(ctx, x.keys.Root(), pageSize, func(keys []string) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		n, err := x.store.DeleteKeys(ctx, keys...)
		deleted += n
		return err
	})
	if err != nil {
		return deleted, rerrors.WrapStore("cleanup", err)
	}
	return deleted, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
