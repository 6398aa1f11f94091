// Package response builds the JSON envelopes returned by the HTTP API:
// {"success": true, ...payload} or {"success": false, "error": "..."}.
package response

// Body is a success envelope. Payload keys are merged next to "success".
type Body map[string]any

func Success(payload map[string]any) Body {
	body := make(Body, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	return body
}

type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func Error(message string) ErrorBody {
	return ErrorBody{Success: false, Error: message}
}
