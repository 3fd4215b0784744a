package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Topology: 정적 토폴로지 YAML 파일 구조
//
//	servers:
//	  - id: connector-1
//	    type: connector
//	    addr: http://10.0.0.1:40300
//	    frontend: true
type Topology struct {
	Servers []Server `yaml:"servers"`
}

// LoadTopologyFile: YAML 토폴로지 파일을 읽어 검증합니다.
func LoadTopologyFile(path string) ([]Server, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file failed: %w", err)
	}
	return ParseTopology(raw)
}

// ParseTopology: YAML 바이트를 서버 목록으로 변환합니다. id/type 누락이나 id 중복은 에러입니다.
func ParseTopology(raw []byte) ([]Server, error) {
	var topo Topology
	if err := yaml.Unmarshal(raw, &topo); err != nil {
		return nil, fmt.Errorf("parse topology failed: %w", err)
	}

	seen := make(map[string]struct{}, len(topo.Servers))
	for i, s := range topo.Servers {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Type) == "" {
			return nil, fmt.Errorf("topology server #%d: id and type are required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("topology server %q: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
		topo.Servers[i].Addr = strings.TrimSuffix(s.Addr, "/")
	}
	return topo.Servers, nil
}

// StaticDirectory: 고정된 서버 목록 기반 Directory
type StaticDirectory struct {
	self    Server
	servers []Server
}

// NewStaticDirectory: self 가 목록에 없으면 추가한 뒤 정렬해 보관합니다.
func NewStaticDirectory(self Server, servers []Server) (*StaticDirectory, error) {
	if strings.TrimSpace(self.ID) == "" {
		return nil, errors.New("self server id is empty")
	}

	list := make([]Server, 0, len(servers)+1)
	found := false
	for _, s := range servers {
		if s.ID == self.ID {
			found = true
			s = self
		}
		list = append(list, s)
	}
	if !found {
		list = append(list, self)
	}
	sortServers(list)
	return &StaticDirectory{self: self, servers: list}, nil
}

// ServersByType: 주어진 타입의 서버 목록을 반환합니다.
func (d *StaticDirectory) ServersByType(_ context.Context, serverType string) ([]Server, error) {
	return filterByType(d.servers, serverType), nil
}

// Servers: 전체 서버 목록의 복사본을 반환합니다.
func (d *StaticDirectory) Servers(context.Context) ([]Server, error) {
	return append([]Server(nil), d.servers...), nil
}

// IsFrontend: 현재 노드의 frontend 여부
func (d *StaticDirectory) IsFrontend() bool { return d.self.Frontend }
