package gigachat

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type OutcomeKind string

const (
	KindParsed    OutcomeKind = "parsed"
	KindMalformed OutcomeKind = "malformed"
	KindTimeout   OutcomeKind = "timeout"
	KindFailed    OutcomeKind = "failed"
)

const (
	DefaultSummary         = "Анализ выполнен"
	DefaultRecommendations = "Рекомендуется консультация врача"
	DefaultConfidence      = 0.5
	DefaultConditionCode   = "UNKNOWN"
	DefaultSeverity        = "medium"

	MaxConditionName        = 255
	MaxConditionCode        = 50
	MaxConditionDescription = 500

	malformedSummaryLength = 200
	malformedConfidence    = 0.3
	timeoutConfidence      = 0.4
)

type Condition struct {
	Name        string  `json:"condition_name"`
	Code        string  `json:"code"`
	Confidence  float64 `json:"confidence"`
	Severity    string  `json:"severity"`
	Description string  `json:"description,omitempty"`
}

// Outcome is the canonical result of one analysis call. Kind tells the caller
// whether the model answered (parsed, malformed) or the call degraded
// (timeout, failed).
type Outcome struct {
	Kind            OutcomeKind
	Summary         string
	Conditions      []Condition
	Recommendations string
	Confidence      float64
	Error           string
	// Extra keeps any additional top-level fields the model returned.
	Extra map[string]interface{}
}

// Payload is the normalized response as stored with the analysis result.
func (o Outcome) Payload() map[string]interface{} {
	payload := make(map[string]interface{}, len(o.Extra)+5)
	for k, v := range o.Extra {
		payload[k] = v
	}
	conditions := o.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	payload["summary"] = o.Summary
	payload["detected_conditions"] = conditions
	payload["recommendations"] = o.Recommendations
	payload["confidence"] = o.Confidence
	if o.Error != "" {
		payload["error"] = o.Error
	}
	return payload
}

func FailedOutcome(reason string) Outcome {
	return Outcome{
		Kind:            KindFailed,
		Summary:         "Анализ не выполнен: " + reason,
		Conditions:      []Condition{},
		Recommendations: "Попробуйте загрузить файл снова",
		Confidence:      0,
		Error:           reason,
	}
}

func TimeoutOutcome() Outcome {
	return Outcome{
		Kind:            KindTimeout,
		Summary:         "Анализ прерван по времени",
		Conditions:      []Condition{},
		Recommendations: "Требуется повторный анализ",
		Confidence:      timeoutConfidence,
		Error:           "timeout",
	}
}

// reply is either a parsed JSON object or the raw text the model sent when
// no object could be recovered from it.
type reply interface {
	isReply()
}

type parsedReply struct {
	fields map[string]interface{}
}

type malformedReply struct {
	raw string
}

func (parsedReply) isReply()    {}
func (malformedReply) isReply() {}

var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseReply(content string) reply {
	cleaned := stripFences(content)

	if fields, ok := decodeObject(cleaned); ok {
		return parsedReply{fields: fields}
	}
	if match := objectPattern.FindString(cleaned); match != "" {
		if fields, ok := decodeObject(match); ok {
			return parsedReply{fields: fields}
		}
	}
	return malformedReply{raw: content}
}

func stripFences(content string) string {
	cleaned := strings.TrimSpace(content)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) > 2 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	if strings.HasPrefix(strings.ToLower(cleaned), "json") {
		cleaned = strings.TrimSpace(cleaned[len("json"):])
	}
	return cleaned
}

// decodeObject accepts any valid JSON document; a document that is not an
// object normalizes to an empty one.
func decodeObject(s string) (map[string]interface{}, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	if obj, ok := v.(map[string]interface{}); ok {
		return obj, true
	}
	return map[string]interface{}{}, true
}

func normalize(r reply) Outcome {
	switch r := r.(type) {
	case parsedReply:
		return normalizeParsed(r.fields)
	case malformedReply:
		summary := truncateRunes(strings.TrimSpace(r.raw), malformedSummaryLength)
		if summary == "" {
			summary = DefaultSummary
		}
		return Outcome{
			Kind:            KindMalformed,
			Summary:         summary,
			Conditions:      []Condition{},
			Recommendations: "Требуется консультация врача",
			Confidence:      malformedConfidence,
		}
	}
	return FailedOutcome(fmt.Sprintf("unexpected reply %T", r))
}

func normalizeParsed(fields map[string]interface{}) Outcome {
	out := Outcome{
		Kind:            KindParsed,
		Summary:         stringOr(fields["summary"], DefaultSummary),
		Recommendations: stringOr(fields["recommendations"], DefaultRecommendations),
		Confidence:      clamp(floatOr(fields["confidence"], DefaultConfidence)),
		Error:           stringOr(fields["error"], ""),
		Extra:           map[string]interface{}{},
	}

	rawConditions, _ := fields["detected_conditions"].([]interface{})
	if len(rawConditions) == 0 {
		if legacy, ok := fields["conditions"].([]interface{}); ok {
			rawConditions = legacy
		}
	}

	out.Conditions = make([]Condition, 0, len(rawConditions))
	for _, raw := range rawConditions {
		if cond, ok := normalizeCondition(raw); ok {
			out.Conditions = append(out.Conditions, cond)
		}
	}

	for k, v := range fields {
		switch k {
		case "summary", "detected_conditions", "conditions", "recommendations", "confidence", "error":
		default:
			out.Extra[k] = v
		}
	}
	return out
}

func normalizeCondition(raw interface{}) (Condition, bool) {
	entry, ok := raw.(map[string]interface{})
	if !ok {
		return Condition{}, false
	}

	name := stringOr(entry["condition_name"], "")
	if name == "" {
		name = stringOr(entry["name"], "")
	}
	if name == "" {
		return Condition{}, false
	}

	return Condition{
		Name:        truncateRunes(name, MaxConditionName),
		Code:        truncateRunes(stringOr(entry["code"], DefaultConditionCode), MaxConditionCode),
		Confidence:  clamp(floatOr(entry["confidence"], DefaultConfidence)),
		Severity:    NormalizeSeverity(stringOr(entry["severity"], "")),
		Description: truncateRunes(stringOr(entry["description"], ""), MaxConditionDescription),
	}, true
}

// NormalizeSeverity maps anything outside low, medium and high to medium.
func NormalizeSeverity(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "low", "medium", "high":
		return v
	}
	return DefaultSeverity
}

func stringOr(v interface{}, def string) string {
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return def
}

func floatOr(v interface{}, def float64) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(f, ",", ".")), 64); err == nil {
			return parsed
		}
	case bool:
		if f {
			return 1
		}
		return 0
	}
	return def
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
