// Package httputil 은 노드 간 JSON over HTTP 호출 헬퍼를 제공한다.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// HTTP 헤더 관련 상수
const (
	// ContentTypeJSON: JSON 요청/응답 Content-Type 헤더 값
	ContentTypeJSON = "application/json"
	// HeaderContentType: Content-Type 헤더 이름
	HeaderContentType = "Content-Type"
	// DefaultMaxResponseBytes: 응답 바디 최대 크기 기본값 (1MiB)
	DefaultMaxResponseBytes int64 = 1 << 20
)

// ErrEmptyBody: 응답 바디가 비어있을 때 발생하는 에러
var ErrEmptyBody = errors.New("empty response body")

// StatusError: 2xx 가 아닌 응답을 받았을 때의 에러
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("http %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// PostJSON: body 를 JSON 으로 POST 하고, out 이 nil 이 아니면 응답을 디코딩한다.
// 응답 바디는 maxBytes 까지만 읽는다. (0 이하면 DefaultMaxResponseBytes)
func PostJSON(ctx context.Context, client *http.Client, url string, body any, out any, maxBytes int64) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode json failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set(HeaderContentType, ContentTypeJSON)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	reader := io.LimitReader(resp.Body, maxBytes)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(reader, 512))
		return StatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, reader)
		return nil
	}
	return DecodeJSON(reader, out)
}

// DecodeJSON: reader 에서 JSON 하나를 읽어 out 으로 디코딩한다.
func DecodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("decode json failed: %w", err)
	}
	return nil
}
