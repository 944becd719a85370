package akash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

var allowedModelsPattern = regexp.MustCompile(`Allowed team models = \[(.*?)\]`)

var quoteStripper = strings.NewReplacer("'", "", `"`, "")

// AllowedModels extracts the model list from an upstream access-denied
// message of the form "Allowed team models = ['A', 'B']". It returns nil when
// the phrase is absent, which callers cannot tell apart from "no restriction".
func AllowedModels(message string) []string {
	match := allowedModelsPattern.FindStringSubmatch(message)
	if len(match) < 2 {
		return nil
	}

	var out []string
	for _, part := range strings.Split(match[1], ",") {
		id := strings.TrimSpace(quoteStripper.Replace(part))
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func readFaultMessage(resp *http.Response) string {
	generic := fmt.Sprintf("Request failed with status code %d", resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return generic
	}
	return faultMessage(body, generic)
}

// faultMessage pulls a human-readable message out of an error body:
// {"error":{"message":...}}, {"error":"..."}, {"message":...}, a bare JSON
// string or plain text. Anything else yields fallback.
func faultMessage(body []byte, fallback string) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fallback
	}

	switch trimmed[0] {
	case '{':
		var envelope struct {
			Error   json.RawMessage `json:"error"`
			Message string          `json:"message"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return fallback
		}
		if len(envelope.Error) > 0 {
			var obj apiErrorObject
			if err := json.Unmarshal(envelope.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
				return obj.Message
			}
			var text string
			if err := json.Unmarshal(envelope.Error, &text); err == nil && strings.TrimSpace(text) != "" {
				return text
			}
		}
		if strings.TrimSpace(envelope.Message) != "" {
			return envelope.Message
		}
		return fallback
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		return fallback
	case '[', '<':
		return fallback
	default:
		return string(trimmed)
	}
}
