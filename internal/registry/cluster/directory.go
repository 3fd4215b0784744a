// Package cluster 는 푸시 대상 서버를 찾기 위한 클러스터 디렉터리를 제공한다.
// 정적 토폴로지(YAML)와 Valkey 자기등록 방식 두 가지 구현이 있다.
package cluster

import (
	"context"
	"sort"
	"strings"
)

// Server: 클러스터에 참여하는 서버 하나의 정보
type Server struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"serverType" yaml:"type"`
	Addr     string `json:"addr" yaml:"addr"`
	Frontend bool   `json:"frontend" yaml:"frontend"`
}

// Directory: 서버 목록 조회 인터페이스. 반환 순서는 서버 ID 오름차순으로 고정된다.
type Directory interface {
	// ServersByType: 주어진 타입의 서버 목록을 반환합니다.
	ServersByType(ctx context.Context, serverType string) ([]Server, error)
	// Servers: 전체 서버 목록을 반환합니다.
	Servers(ctx context.Context) ([]Server, error)
	// IsFrontend: 현재 노드가 클라이언트 연결을 직접 가진 frontend 인지 반환합니다.
	IsFrontend() bool
}

func filterByType(servers []Server, serverType string) []Server {
	serverType = strings.TrimSpace(serverType)
	out := make([]Server, 0, len(servers))
	for _, s := range servers {
		if s.Type == serverType {
			out = append(out, s)
		}
	}
	return out
}

func sortServers(servers []Server) {
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
}
