package valkeyx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Config: Valkey 연결 하나의 설정.
// 레지스트리 노드는 클러스터 공용 연결과 스토어 전용 연결을 따로 열고, ClientName 으로 둘을 구분한다.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// ClientName: 핸드셰이크 때 CLIENT SETNAME 으로 등록된다. 공백은 허용되지 않는다.
	ClientName string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	// DisableCache: 여러 노드가 같은 키를 갱신하므로 레지스트리에서는 항상 true 로 쓴다.
	DisableCache bool
	UseTLS       bool
	// ForceSingleClient: 클러스터/센티널 탐색을 건너뛴다. (miniredis 테스트용)
	ForceSingleClient bool
}

func (c Config) options() (valkey.ClientOption, error) {
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		return valkey.ClientOption{}, errors.New("valkey addr is empty")
	}
	if strings.ContainsAny(c.ClientName, " \t\n") {
		return valkey.ClientOption{}, fmt.Errorf("valkey client name %q contains whitespace", c.ClientName)
	}

	opts := valkey.ClientOption{
		InitAddress:       []string{addr},
		Username:          c.Username,
		Password:          c.Password,
		SelectDB:          c.DB,
		ClientName:        c.ClientName,
		DisableCache:      c.DisableCache,
		ForceSingleClient: c.ForceSingleClient,
		ConnWriteTimeout:  c.WriteTimeout,
		BlockingPoolSize:  c.PoolSize,
	}
	opts.Dialer.Timeout = c.DialTimeout
	if c.UseTLS {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	return opts, nil
}

// Dial: 클라이언트를 만들고 PING 으로 연결을 확인한다. PING 이 실패하면 클라이언트를 닫고 에러를 반환한다.
func Dial(ctx context.Context, cfg Config) (valkey.Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client %q failed: %w", cfg.ClientName, err)
	}
	if err := Ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey client %q: %w", cfg.ClientName, err)
	}
	return client, nil
}

// Ping: PING 한 번으로 연결 상태를 확인한다.
func Ping(ctx context.Context, client valkey.Client) error {
	if client == nil {
		return errors.New("valkey client is nil")
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("valkey ping failed: %w", err)
	}
	return nil
}

// IsNil: 키/필드가 없어서 난 nil 응답인지. 래핑된 에러도 판별한다.
func IsNil(err error) bool {
	var ve *valkey.ValkeyError
	return errors.As(err, &ve) && ve.IsNil()
}
