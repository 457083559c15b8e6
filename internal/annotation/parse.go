package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"image-annotator/internal/model"
)

const (
	SentinelTitle       = "No title present"
	SentinelDescription = "No description present"
)

var (
	ErrCaptionUnparseable   = errors.New("caption response is not a json object")
	ErrCaptionMissingFields = errors.New("caption response is missing fields")
)

// fencePattern matches a markdown code fence with an optional language tag,
// capturing its body.
var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")

// ParseCaption turns raw captioning text into a metadata record. The record
// is always usable: missing or unparseable fields are replaced by the
// sentinel values and the returned error says why.
func ParseCaption(raw string) (model.Metadata, error) {
	record := model.Metadata{Title: SentinelTitle, Description: SentinelDescription}

	fields, ok := decodeObject(raw)
	if !ok {
		return record, ErrCaptionUnparseable
	}

	var missing []string
	if title, ok := stringField(fields, "title"); ok {
		record.Title = title
	} else {
		missing = append(missing, "title")
	}
	if description, ok := stringField(fields, "description"); ok {
		record.Description = description
	} else {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return record, fmt.Errorf("%w: %s", ErrCaptionMissingFields, strings.Join(missing, ", "))
	}
	return record, nil
}

// decodeObject tries each known wrapping in turn: the raw text, the body of
// every code fence, and finally the outermost brace-delimited slice.
func decodeObject(raw string) (map[string]any, bool) {
	candidates := []string{raw}
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, stripFenceMarkers(raw))
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(candidate), &fields); err == nil && fields != nil {
			return fields, true
		}
	}
	return nil, false
}

// stripFenceMarkers removes an unterminated or leading fence and its language tag.
func stripFenceMarkers(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexAny(s, "\r\n"); nl >= 0 && !strings.Contains(s[:nl], "{") {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		for k, candidate := range fields {
			if strings.EqualFold(k, key) {
				v, ok = candidate, true
				break
			}
		}
	}
	s, isString := v.(string)
	if !ok || !isString {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
