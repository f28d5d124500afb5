package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a decoded backend response.
type Response struct {
	StatusCode int
	Header     http.Header

	// Code and Message come from the envelope. Code is zero when the body
	// carried no envelope.
	Code    int
	Message string

	// Data is the envelope payload, or the whole body when no envelope was present.
	Data json.RawMessage

	// Body is the raw response body.
	Body []byte
}

// Decode unmarshals Data into out. A nil out or an empty payload is a no-op.
func (r *Response) Decode(out any) error {
	if out == nil || r == nil || len(r.Data) == 0 || bytes.Equal(r.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("apiclient: decode response data: %w", err)
	}
	return nil
}

// envelope is the backend's response wrapper. Code is a pointer so that a
// missing field can be told apart from an explicit zero.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	// Some endpoints report failures outside the envelope.
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeResponse(status int, header http.Header, raw []byte) (*Response, error) {
	resp := &Response{
		StatusCode: status,
		Header:     header,
		Body:       raw,
	}

	var env envelope
	trimmed := bytes.TrimSpace(raw)
	isObject := len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &env) == nil

	switch {
	case isObject && env.Code != nil:
		resp.Code = *env.Code
		resp.Message = env.Message
		resp.Data = env.Data
	case len(trimmed) > 0:
		resp.Data = json.RawMessage(trimmed)
	}

	if !isSuccess(status) || !isSuccessCode(resp.Code) {
		return nil, &Error{
			StatusCode: status,
			Code:       resp.Code,
			Message:    errorMessage(status, &env),
			Body:       raw,
		}
	}

	return resp, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// isSuccessCode reports whether an envelope code means success: 0 or any 2xx.
func isSuccessCode(code int) bool {
	return code == 0 || isSuccess(code)
}

func errorMessage(status int, env *envelope) string {
	switch {
	case env.Message != "":
		return env.Message
	case env.ErrorDescription != "":
		return env.ErrorDescription
	case env.Error != "":
		return env.Error
	case http.StatusText(status) != "":
		return http.StatusText(status)
	default:
		return fmt.Sprintf("request failed with status %d", status)
	}
}
