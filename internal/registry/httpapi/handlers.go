package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/httputil"
	rerrors "github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/errors"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/pusher"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/remote"
	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/registry/service"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	svc    *service.Service
	rpc    *remote.Handler
	audit  AuditReader
	logger *slog.Logger
}

type (
	// AddMemberRequest: 멤버 추가 요청 DTO
	AddMemberRequest struct {
		UID      string `json:"uid"`
		ServerID string `json:"serverId"`
	}

	// PushRequest: 채널 푸시 요청 DTO
	PushRequest struct {
		ServerType string          `json:"serverType"`
		Route      string          `json:"route"`
		Payload    json.RawMessage `json:"payload"`
	}

	// PushTarget: 서버별 푸시 결과 DTO
	PushTarget struct {
		ServerID string   `json:"serverId"`
		UIDs     []string `json:"uids"`
		Failed   []string `json:"failed"`
		Error    string   `json:"error,omitempty"`
	}

	// PushResponse: 채널 푸시 응답 DTO. 일부 서버만 실패한 경우에도 Error/Code 와 함께 부분 결과를 담는다.
	PushResponse struct {
		FailIDs   []string     `json:"failIds"`
		Targets   []PushTarget `json:"targets"`
		NoTargets bool         `json:"noTargets"`
		Error     string       `json:"error,omitempty"`
		Code      string       `json:"code,omitempty"`
	}

	errorResponse struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
)

// statusFor: 도메인 에러를 HTTP 상태와 코드로 변환한다.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, rerrors.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	case rerrors.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, rerrors.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, remote.ErrUnknownMethod):
		return http.StatusNotFound, "unknown_method"
	case errors.Is(err, remote.ErrNotFrontend):
		return http.StatusConflict, "not_frontend"
	case errors.Is(err, service.ErrPushDisabled):
		return http.StatusNotImplemented, "push_disabled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WarnContext(c.Request.Context(), "http_request_failed", "path", c.FullPath(), "code", code, "err", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Code: code})
}

func (h *handlers) bind(c *gin.Context, out any) bool {
	if err := httputil.DecodeJSON(io.LimitReader(c.Request.Body, maxBodyBytes), out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
		return false
	}
	return true
}

// remoteCall: POST /rpc/:namespace/:service/:method
func (h *handlers) remoteCall(c *gin.Context) {
	var env remote.Envelope
	if !h.bind(c, &env) {
		return
	}
	if env.Namespace != c.Param("namespace") || env.Service != c.Param("service") || env.Method != c.Param("method") {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "envelope does not match path", Code: "bad_request"})
		return
	}

	result, err := h.rpc.Handle(c.Request.Context(), env)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.svc.State().String()})
}

func (h *handlers) add(c *gin.Context) {
	var req AddMemberRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.Add(c.Request.Context(), c.Param("channel"), req.UID, req.ServerID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) leave(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), c.Param("channel"), c.Param("uid"), c.Query("serverId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) members(c *gin.Context) {
	members, err := h.svc.Members(c.Request.Context(), c.Param("channel"), c.Query("serverId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *handlers) isMember(c *gin.Context) {
	ok, err := h.svc.IsMember(c.Request.Context(), c.Param("channel"), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": ok})
}

func (h *handlers) membersByServer(c *gin.Context) {
	grouped, err := h.svc.MembersByServer(c.Request.Context(), c.Param("channel"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": grouped})
}

func (h *handlers) length(c *gin.Context) {
	n, err := h.svc.Len(c.Request.Context(), c.Param("channel"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"len": n})
}

func (h *handlers) destroy(c *gin.Context) {
	if err := h.svc.Destroy(c.Request.Context(), c.Param("channel")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) push(c *gin.Context) {
	var req PushRequest
	if !h.bind(c, &req) {
		return
	}

	outcome, err := h.svc.Push(c.Request.Context(), pusher.Request{
		ServerType: req.ServerType,
		Route:      req.Route,
		Payload:    req.Payload,
		Channel:    c.Param("channel"),
	})

	resp := PushResponse{
		FailIDs:   outcome.Failed,
		Targets:   make([]PushTarget, 0, len(outcome.Targets)),
		NoTargets: outcome.NoTargets,
	}
	if resp.FailIDs == nil {
		resp.FailIDs = []string{}
	}
	for _, t := range outcome.Targets {
		target := PushTarget{ServerID: t.ServerID, UIDs: t.UIDs, Failed: t.Failed}
		if target.Failed == nil {
			target.Failed = []string{}
		}
		if t.Err != nil {
			target.Error = t.Err.Error()
		}
		resp.Targets = append(resp.Targets, target)
	}

	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.WarnContext(c.Request.Context(), "http_request_failed", "path", c.FullPath(), "code", code, "err", err)
		}
		resp.Error, resp.Code = err.Error(), code
		c.AbortWithStatusJSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) memberships(c *gin.Context) {
	mapping, err := h.svc.Memberships(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": mapping})
}

func (h *handlers) leaveAll(c *gin.Context) {
	left, err := h.svc.LeaveAll(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": left})
}

func (h *handlers) recentPushes(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid limit", Code: "bad_request"})
		return
	}
	rows, err := h.audit.Recent(c.Request.Context(), c.Query("channel"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushes": rows})
}
