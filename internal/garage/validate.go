package garage

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Response is a validated device response.
// Fields is set for structured APIs, Text for unstructured ones.
type Response struct {
	Fields map[string]any
	Text   string
}

// Lookup returns a structured field and whether it was present.
func (r Response) Lookup(field string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[field]
	return v, ok
}

// Validate checks a 2xx response body against the endpoint's success criteria.
//
// Structured bodies must decode as a JSON object; when SuccessField is set it
// must be present, and when SuccessValue is set it must compare equal.
// Unstructured bodies must contain SuccessBodyContains when set.
//
// Returns:
//   - Response: The decoded record or raw text for state decoding
//   - error: *MalformedBodyError, *MissingFieldError, *UnexpectedValueError
//     or *UnexpectedBodyError
func Validate(body []byte, ep Endpoint, structured bool) (Response, error) {
	if !structured {
		text := string(body)
		if ep.SuccessBodyContains != "" && !strings.Contains(text, ep.SuccessBodyContains) {
			return Response{}, &UnexpectedBodyError{Expected: ep.SuccessBodyContains}
		}
		return Response{Text: text}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(body), &fields); err != nil {
		return Response{}, &MalformedBodyError{Err: err}
	}
	if fields == nil {
		// A bare JSON null decodes without error but carries no record.
		fields = map[string]any{}
	}

	if ep.SuccessField == "" {
		return Response{Fields: fields}, nil
	}

	got, ok := fields[ep.SuccessField]
	if !ok {
		return Response{}, &MissingFieldError{Field: ep.SuccessField}
	}
	if ep.SuccessValue != nil && !looseEqual(got, ep.SuccessValue) {
		return Response{}, &UnexpectedValueError{Field: ep.SuccessField, Got: got, Want: ep.SuccessValue}
	}

	return Response{Fields: fields}, nil
}

// DecodeDoorState translates a validated response into a DoorState.
//
// Structured responses read the named field, which must hold a string.
// Unstructured responses use the whole trimmed body.
func DecodeDoorState(resp Response, field string, structured bool) (DoorState, error) {
	if !structured {
		return ParseDoorState(resp.Text)
	}

	v, ok := resp.Lookup(field)
	if !ok {
		return DoorStopped, &MissingFieldError{Field: field}
	}
	s, ok := v.(string)
	if !ok {
		return DoorStopped, &UnrecognizedStateError{Value: v}
	}
	return ParseDoorState(s)
}

// DecodeLightState translates a validated response into an on/off value.
//
// Structured responses are on when the field is loosely equal to true
// (true, 1 or "1"); unstructured bodies are on for true, yes, on or 1.
// Anything else is off.
func DecodeLightState(resp Response, field string, structured bool) bool {
	if !structured {
		switch strings.ToLower(strings.TrimSpace(resp.Text)) {
		case "true", "yes", "on", "1":
			return true
		default:
			return false
		}
	}

	v, ok := resp.Lookup(field)
	if !ok {
		return false
	}
	return looseEqual(v, true)
}

// looseEqual compares decoded JSON values the way device firmware does:
// booleans and numeric strings are compared as numbers.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if aIsString && bIsString {
		return as == bs
	}

	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	return aok && bok && an == bn
}

// toNumber converts JSON scalars to float64.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(trimmed, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
