package lifecycle

// State: 레지스트리 서비스 상태. Inited -> Starting -> Started -> Closed, Closed 는 종료 상태이다.
type State int32

const (
	// StateInited: 생성됨, 아직 스토어에 연결하지 않음
	StateInited State = iota
	// StateStarting: 스토어 연결 완료, 시작 시 cleanup 진행 중. 연산은 아직 거절된다.
	StateStarting
	// StateStarted: 스토어 연결 완료, 모든 연산 허용
	StateStarted
	// StateClosed: 중지됨, 재시작 불가
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "inited"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
