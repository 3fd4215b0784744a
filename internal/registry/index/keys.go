package index

import (
	"strconv"
	"strings"
)

// DefaultPrefix: 레지스트리 키 기본 prefix
const DefaultPrefix = "chreg"

// 키 패밀리 태그
const (
	channelTag   = "c#"
	serverSetTag = "s#"
	userTag      = "u#"
)

// Keyspace: 레지스트리 키 생성기.
//
//	{prefix}:c#{channel}          채널 → {uid: serverID} 해시
//	{prefix}:s#{len}:{channel}:{server} (채널, 서버) → {uid} 셋
//	{prefix}:u#{uid}              유저 → {channel: serverID} 해시
//
// id 는 불투명 문자열이라 공백을 다듬지 않는다.
// 셋 키의 {len} 은 channel 의 바이트 길이로, channel 이나 server 에 ':' 가 있어도 키가 겹치지 않는다.
type Keyspace struct {
	prefix string
}

// NewKeyspace: prefix 로 Keyspace 를 만든다. 빈 값이면 DefaultPrefix 를 쓴다.
func NewKeyspace(prefix string) Keyspace {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keyspace{prefix: prefix}
}

// Prefix 는 설정된 prefix 를 반환한다.
func (k Keyspace) Prefix() string { return k.prefix }

// Root 는 cleanup 스캔에 쓰는 "{prefix}:" 를 반환한다.
func (k Keyspace) Root() string { return k.prefix + ":" }

// Channel 은 채널 forward 해시 키이다.
func (k Keyspace) Channel(channel string) string {
	return k.Root() + channelTag + channel
}

// ServerSet 은 (채널, 서버) 셋 키이다.
func (k Keyspace) ServerSet(channel, serverID string) string {
	return k.Root() + serverSetTag + strconv.Itoa(len(channel)) + ":" + channel + ":" + serverID
}

// User 는 유저 reverse 해시 키이다.
func (k Keyspace) User(uid string) string {
	return k.Root() + userTag + uid
}
