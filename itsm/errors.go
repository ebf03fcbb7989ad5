package itsm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// RequestError is returned for any non-2xx tenant response. It keeps the
// raw response body so the classifier can extract a human-readable message
// later, at the batch boundary.
type RequestError struct {
	// StatusCode is the HTTP status of the failed request.
	StatusCode int
	// Body is the raw response body, which may be JSON, a JSON-encoded
	// string, or plain text depending on the endpoint.
	Body string
	// Context names the operation that failed, e.g. "businessObject.update".
	Context string
	// Description optionally carries extra detail set by the caller.
	Description string
	// Err wraps an underlying transport error, if any.
	Err error
}

func (e *RequestError) Error() string {
	detail := ClassifyError(e)
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Context, detail.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", detail.Message, e.StatusCode)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ErrorDetail is the classified form of a failed request, suitable for
// attaching to the originating input item.
type ErrorDetail struct {
	// Message is a single human-readable summary.
	Message string
	// Description holds any further detail lines extracted from the body.
	Description []string
	// StatusCode is the HTTP status, zero when the failure never reached
	// the tenant.
	StatusCode int
}

// JoinDescription renders the description lines as one block, for hosts
// that display a single detail string alongside the message.
func (d ErrorDetail) JoinDescription() string {
	return strings.Join(d.Description, "\n")
}

// ClassifyError extracts the most specific message the tenant response
// allows. The tenant is inconsistent about error shapes across endpoints,
// so classification is best effort and never fails: an unrecognised body
// degrades to a generic message with the raw body as description. A
// description attached to the RequestError before classification is kept;
// body inspection only fills the description when it is still unset.
func ClassifyError(err error) ErrorDetail {
	if err == nil {
		return ErrorDetail{Message: "Request failed"}
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return ErrorDetail{Message: err.Error()}
	}

	detail := ErrorDetail{Message: "Request failed", StatusCode: reqErr.StatusCode}
	if reqErr.Description != "" {
		detail.Description = []string{reqErr.Description}
	}

	payload := decodeErrorPayload(reqErr.Body)
	if payload.Exists() {
		classifyPayload(&detail, payload)
	} else if body := strings.TrimSpace(reqErr.Body); body != "" && len(detail.Description) == 0 {
		detail.Description = []string{body}
	}
	if len(detail.Description) == 0 && reqErr.Err != nil {
		detail.Description = []string{reqErr.Err.Error()}
	}
	return detail
}

// decodeErrorPayload tries the shapes tenant endpoints actually produce,
// in order: a JSON object/array, then a serialized byte sequence (some
// proxies re-encode the body as {"type":"Buffer","data":[...]} or a bare
// array of byte values), then a JSON-encoded string containing JSON (the
// attachment endpoints double-encode), then giving up.
func decodeErrorPayload(body string) gjson.Result {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || !gjson.Valid(trimmed) {
		return gjson.Result{}
	}
	parsed := gjson.Parse(trimmed)

	if decoded, ok := decodeByteSequence(parsed); ok {
		if gjson.Valid(decoded) {
			return gjson.Parse(decoded)
		}
		return gjson.Result{}
	}

	if parsed.Type == gjson.String {
		inner := parsed.String()
		if gjson.Valid(inner) {
			return gjson.Parse(inner)
		}
		return parsed
	}
	return parsed
}

// decodeByteSequence recognises a buffer-shaped payload and converts the
// byte values back into text.
func decodeByteSequence(payload gjson.Result) (string, bool) {
	data := payload
	if payload.IsObject() {
		if payload.Get("type").String() != "Buffer" {
			return "", false
		}
		data = payload.Get("data")
	}
	if !data.IsArray() {
		return "", false
	}
	values := data.Array()
	if len(values) == 0 {
		return "", false
	}
	buf := make([]byte, len(values))
	for i, v := range values {
		if v.Type != gjson.Number {
			return "", false
		}
		n := v.Int()
		if n < 0 || n > 255 {
			return "", false
		}
		buf[i] = byte(n)
	}
	return string(buf), true
}

// classifyPayload probes the known error layouts in order: OData
// (error.message.value, error.message), REST (Message), the structured
// code/description/message triple, then stringifying the object. In the
// triple, the body's description field is the summary and its message
// field holds the detail lines.
func classifyPayload(detail *ErrorDetail, payload gjson.Result) {
	if payload.Type == gjson.String {
		detail.Message = payload.String()
		return
	}
	if payload.IsArray() {
		items := payload.Array()
		if len(items) > 0 {
			classifyPayload(detail, items[0])
		}
		return
	}

	if v := payload.Get("error.message.value"); v.Exists() {
		detail.Message = v.String()
		return
	}
	if v := payload.Get("error.message"); v.Exists() && v.Type == gjson.String {
		detail.Message = v.String()
		return
	}
	if v := payload.Get("Message"); v.Exists() {
		detail.Message = v.String()
		return
	}

	code := payload.Get("code")
	description := payload.Get("description")
	message := payload.Get("message")
	if code.Exists() || description.Exists() || message.Exists() {
		if description.Exists() && description.String() != "" {
			detail.Message = description.String()
		} else if code.Exists() && code.String() != "" {
			detail.Message = fmt.Sprintf("Error %s", code.String())
		}
		if len(detail.Description) == 0 && message.Exists() && message.Type != gjson.Null {
			detail.Description = descriptionLines(message)
		}
		return
	}

	if payload.IsObject() && len(detail.Description) == 0 {
		// Last resort: stringify the object so the operator sees something.
		if compact, err := json.Marshal(payload.Value()); err == nil {
			detail.Description = []string{string(compact)}
		}
	}
}

// descriptionLines renders a message field as detail lines, stringifying
// non-string entries.
func descriptionLines(message gjson.Result) []string {
	if message.IsArray() {
		entries := message.Array()
		lines := make([]string, 0, len(entries))
		for _, entry := range entries {
			lines = append(lines, descriptionLine(entry))
		}
		return lines
	}
	return []string{descriptionLine(message)}
}

func descriptionLine(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Raw
}
