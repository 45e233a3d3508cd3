package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Category 错误分类
type Category string

const (
	CategoryNetwork Category = "network"
	CategoryClient  Category = "client"
	CategoryServer  Category = "server"
	CategoryDecode  Category = "decode"
)

// Error 统一的远端调用错误：分类 + HTTP 状态 + 服务端消息
type Error struct {
	Category Category
	Status   int
	Message  string
	Method   string
	Path     string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Category))
	if e.Method != "" || e.Path != "" {
		fmt.Fprintf(&b, " %s %s", e.Method, e.Path)
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsError 提取 *Error
func AsError(err error) (*Error, bool) {
	var restErr *Error
	if errors.As(err, &restErr) && restErr != nil {
		return restErr, true
	}
	return nil, false
}

// StatusOf 返回错误携带的 HTTP 状态，未知为 0
func StatusOf(err error) int {
	if restErr, ok := AsError(err); ok {
		return restErr.Status
	}
	return 0
}

// MessageOf 返回服务端消息，未知时退回错误文本
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if restErr, ok := AsError(err); ok && restErr.Message != "" {
		return restErr.Message
	}
	return err.Error()
}

// CategoryFromStatus 由 HTTP 状态推导分类
func CategoryFromStatus(status int) Category {
	switch {
	case status >= 500:
		return CategoryServer
	case status >= 400:
		return CategoryClient
	default:
		return CategoryNetwork
	}
}

func newStatusError(method, path string, status int, body []byte) *Error {
	message := extractMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Category: CategoryFromStatus(status),
		Status:   status,
		Message:  message,
		Method:   method,
		Path:     path,
	}
}

// extractMessage 读取 message / error / error.message 字段
func extractMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}
	for _, key := range []string{"message", "error", "msg"} {
		switch v := raw[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok && strings.TrimSpace(msg) != "" {
				return strings.TrimSpace(msg)
			}
		}
	}
	return ""
}
