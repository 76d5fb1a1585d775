// Package httpaction implements the built-in http_request callable: a
// single synchronous outbound HTTP request whose outcome is always
// returned as a structured value, never as a Go error, so that a failed
// call does not abort a pipeline (branching on status_code is the
// template resolver's job, not control flow).
package httpaction

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Log markers carried over verbatim from the original task runner's
// http_request function, so that the log filter's capture-mode state
// machine keeps working against real log output.
const (
	MarkerStart       = "开始执行HTTP请求"
	MarkerDone        = "HTTP请求完成"
	MarkerError       = "HTTP请求发生错误"
	MarkerTaskDone    = "HTTP请求任务执行完成"
	defaultTimeoutSec = 30
)

// Action issues outbound HTTP requests on behalf of the http_request
// callable.
type Action struct {
	client *resty.Client
	logger *slog.Logger

	// OnResult, when set, is notified with every call's success flag; used
	// by callers that want call counts without this package importing a
	// metrics package directly.
	OnResult func(success bool)
}

// New returns an Action that logs through logger.
func New(logger *slog.Logger) *Action {
	return &Action{client: resty.New(), logger: logger}
}

// Execute performs one HTTP request described by args and returns a
// structured result. args["task_id"], when present, is used only for log
// correlation and is never forwarded in the outgoing request.
func (a *Action) Execute(ctx context.Context, args map[string]any) (any, error) {
	taskID, _ := args["task_id"].(string)
	tag := logTag(taskID)

	url, _ := args["url"].(string)
	method := strings.ToUpper(stringOr(args, "method", "GET"))
	timeout := timeoutOr(args, defaultTimeoutSec)
	verify := boolOr(args, "verify", true)
	headers := headersOf(args["headers"])

	a.logger.Info(fmt.Sprintf("%s %s: %s %s", tag, MarkerStart, method, url))
	for k, v := range headers {
		a.logger.Info(fmt.Sprintf("%s 请求头: %s=%s", tag, k, v))
	}

	req := a.client.R().SetContext(ctx).SetHeaders(headers)
	a.client.SetTimeout(time.Duration(timeout) * time.Second)
	a.client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: !verify}) //nolint:gosec // verify is caller-controlled per request

	switch body := args["body"].(type) {
	case nil:
		// no body
	case string:
		req = req.SetBody(body)
	default:
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		a.logger.Error(fmt.Sprintf("%s %s: %v", tag, MarkerError, err))
		a.logger.Info(fmt.Sprintf("%s %s", tag, MarkerTaskDone))
		a.notifyResult(false)
		return map[string]any{"error": err.Error(), "success": false}, nil
	}

	statusCode := resp.StatusCode()
	success := statusCode < 400
	result := map[string]any{
		"status_code": statusCode,
		"headers":     flattenHeaders(resp.Header()),
		"content":     string(resp.Body()),
		"success":     success,
	}

	a.logger.Info(fmt.Sprintf("%s %s: status=%d", tag, MarkerDone, statusCode))
	a.logger.Info(fmt.Sprintf("%s %s", tag, MarkerTaskDone))
	a.notifyResult(success)
	return result, nil
}

func (a *Action) notifyResult(success bool) {
	if a.OnResult != nil {
		a.OnResult(success)
	}
}

func logTag(taskID string) string {
	if taskID == "" {
		return ""
	}
	return fmt.Sprintf("[任务ID: %s]", taskID)
}

func stringOr(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOr(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func timeoutOr(args map[string]any, def int) int {
	switch v := args["timeout"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func headersOf(v any) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			b, _ := json.Marshal(val)
			out[k] = string(b)
		}
	}
	return out
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
