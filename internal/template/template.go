// Package template implements the ${scheme:path} reference expression
// language used to splice prior pipeline step results into a later step's
// arguments. It is grounded on the original task runner's
// _process_arg_value / _extract_context_value / _replace_http_*_ref
// family: the same five schemes, the same whole-value-vs-embedded
// distinction, and the same "leave literal plus warn" behavior on a
// missing path.
package template

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"
)

// refPattern matches one ${scheme:path} expression. Scheme is restricted to
// the five recognized prefixes; path is anything up to the closing brace.
var refPattern = regexp.MustCompile(`\$\{(context|http\.response_body|http\.response_json|http\.headers|http\.status):([^}]*)\}`)

var anchoredRefPattern = regexp.MustCompile(`^` + refPattern.String() + `$`)

// Resolver rewrites reference expressions against a pipeline run's context.
type Resolver struct {
	logger *slog.Logger
}

// New returns a Resolver that logs missing-path warnings through logger.
func New(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve recursively rewrites every string leaf of v (v itself may be a
// string, map[string]any, []any, or a JSON scalar) against ctx.
func (r *Resolver) Resolve(v any, ctx map[string]any) any {
	switch val := v.(type) {
	case string:
		return r.resolveString(val, ctx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = r.Resolve(vv, ctx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = r.Resolve(vv, ctx)
		}
		return out
	default:
		return v
	}
}

// ResolveHTTPArgs applies the http_request-specific resolution rules: url,
// each header value, and body are resolved against ctx; a resolved string
// body beginning with '{' is additionally best-effort re-parsed as JSON.
func (r *Resolver) ResolveHTTPArgs(args map[string]any, ctx map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if url, ok := args["url"]; ok {
		out["url"] = r.Resolve(url, ctx)
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		out["headers"] = r.Resolve(headers, ctx)
	}
	if body, ok := args["body"]; ok {
		resolved := r.Resolve(body, ctx)
		if s, ok := resolved.(string); ok && strings.HasPrefix(strings.TrimSpace(s), "{") {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				resolved = parsed
			}
		}
		out["body"] = resolved
	}
	return out
}

func (r *Resolver) resolveString(s string, ctx map[string]any) any {
	if anchoredRefPattern.MatchString(s) {
		m := anchoredRefPattern.FindStringSubmatch(s)
		val, ok := r.lookup(m[1], m[2], ctx)
		if !ok {
			r.logger.Warn("template: unresolved reference", "expression", s)
			return s
		}
		return val
	}

	if !refPattern.MatchString(s) {
		return s
	}

	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := refPattern.FindStringSubmatch(match)
		val, ok := r.lookup(m[1], m[2], ctx)
		if !ok {
			r.logger.Warn("template: unresolved reference", "expression", match)
			return match
		}
		return stringify(val)
	})
}

func (r *Resolver) lookup(scheme, path string, ctx map[string]any) (any, bool) {
	switch scheme {
	case "context":
		return lookupContextPath(ctx, path)
	case "http.response_body":
		return lookupResultField(ctx, path, "content")
	case "http.response_json":
		target, rest := splitTarget(path)
		resultVal, ok := lookupResultField(ctx, target, "json")
		if !ok {
			return nil, false
		}
		if rest == "" {
			return resultVal, true
		}
		return runJQ(resultVal, rest)
	case "http.headers":
		target, rest := splitTarget(path)
		headers, ok := lookupResultField(ctx, target, "headers")
		if !ok {
			return nil, false
		}
		if rest == "" {
			return headers, true
		}
		m, ok := headers.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[rest]
		return v, ok
	case "http.status":
		return lookupResultField(ctx, path, "status")
	default:
		return nil, false
	}
}

// lookupContextPath navigates a dotted path into ctx. Numeric indices into
// lists are not supported.
func lookupContextPath(ctx map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = ctx
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// lookupResultField fetches one field (content, json, headers, status) from
// the step result recorded for target ("last" or a task id).
func lookupResultField(ctx map[string]any, target, field string) (any, bool) {
	switch field {
	case "content":
		return lookupContextPath(ctx, contextKey(target, "content"))
	case "json":
		return lookupContextPath(ctx, contextKey(target, "json"))
	case "headers":
		v, ok := lookupContextPath(ctx, contextKey(target, "result"))
		if !ok {
			return nil, false
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		h, ok := m["headers"]
		return h, ok
	case "status":
		v, ok := lookupContextPath(ctx, contextKey(target, "result"))
		if !ok {
			return nil, false
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		s, ok := m["status_code"]
		return s, ok
	default:
		return nil, false
	}
}

func contextKey(target, suffix string) string {
	if target == "" || target == "last" {
		return "last_" + suffix
	}
	return "task_" + target + "_" + suffix
}

func splitTarget(path string) (target, rest string) {
	idx := strings.Index(path, ".")
	if idx < 0 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

func runJQ(input any, dottedPath string) (any, bool) {
	query, err := gojq.Parse("." + dottedPath)
	if err != nil {
		return nil, false
	}
	iter := query.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return nil, false
	}
	return v, true
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
