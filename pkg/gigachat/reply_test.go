package gigachat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anemiaReply = `{"summary":"ok","detected_conditions":[{"condition_name":"анемия","code":"D64.9","confidence":0.8,"severity":"medium"}],"recommendations":"see doctor","confidence":0.8}`

func TestParseReplyRecoversObject(t *testing.T) {
	cases := map[string]string{
		"plain":        anemiaReply,
		"fenced":       "```json\n" + anemiaReply + "\n```",
		"fenced bare":  "```\n" + anemiaReply + "\n```",
		"json prefix":  "json " + anemiaReply,
		"JSON prefix":  "JSON\n" + anemiaReply,
		"prose around": "Вот результат анализа:\n" + anemiaReply + "\nБудьте здоровы.",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			out := normalize(parseReply(content))
			require.Equal(t, KindParsed, out.Kind)
			assert.Equal(t, "ok", out.Summary)
			assert.Equal(t, "see doctor", out.Recommendations)
			assert.Equal(t, 0.8, out.Confidence)
			require.Len(t, out.Conditions, 1)
			assert.Equal(t, Condition{Name: "анемия", Code: "D64.9", Confidence: 0.8, Severity: "medium"}, out.Conditions[0])
		})
	}
}

func TestMalformedReplyFallsBack(t *testing.T) {
	raw := strings.Repeat("нет json ", 60)
	out := normalize(parseReply(raw))

	assert.Equal(t, KindMalformed, out.Kind)
	assert.Equal(t, 0.3, out.Confidence)
	assert.Equal(t, "Требуется консультация врача", out.Recommendations)
	assert.Equal(t, 200, utf8.RuneCountInString(out.Summary))
	assert.Empty(t, out.Conditions)

	payload := out.Payload()
	for _, key := range []string{"summary", "detected_conditions", "recommendations", "confidence"} {
		assert.Contains(t, payload, key)
	}
}

func TestMalformedBracesStillFallBack(t *testing.T) {
	out := normalize(parseReply("ответ {не json} конец"))
	assert.Equal(t, KindMalformed, out.Kind)
	assert.Equal(t, "ответ {не json} конец", out.Summary)

	empty := normalize(parseReply("   "))
	assert.Equal(t, KindMalformed, empty.Kind)
	assert.Equal(t, DefaultSummary, empty.Summary)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	out := normalize(parseReply(`{}`))
	assert.Equal(t, KindParsed, out.Kind)
	assert.Equal(t, DefaultSummary, out.Summary)
	assert.Equal(t, DefaultRecommendations, out.Recommendations)
	assert.Equal(t, DefaultConfidence, out.Confidence)
	assert.NotNil(t, out.Conditions)

	array := normalize(parseReply(`[1, 2, 3]`))
	assert.Equal(t, KindParsed, array.Kind)
	assert.Equal(t, DefaultSummary, array.Summary)
}

func TestNormalizeConditions(t *testing.T) {
	out := normalize(parseReply(`{
		"confidence": 1.7,
		"model_notes": "extra",
		"detected_conditions": [],
		"conditions": [
			{"name": "гастрит", "severity": "HIGH", "confidence": "0.45"},
			{"condition_name": "дефицит железа", "severity": "critical", "confidence": -2},
			{"code": "X00"},
			"просто строка",
			{"condition_name": "` + strings.Repeat("а", 300) + `", "code": "` + strings.Repeat("Z", 80) + `"}
		]
	}`))

	require.Equal(t, KindParsed, out.Kind)
	assert.Equal(t, 1.0, out.Confidence)
	assert.Equal(t, "extra", out.Extra["model_notes"])
	require.Len(t, out.Conditions, 3)

	assert.Equal(t, "гастрит", out.Conditions[0].Name)
	assert.Equal(t, DefaultConditionCode, out.Conditions[0].Code)
	assert.Equal(t, "high", out.Conditions[0].Severity)
	assert.Equal(t, 0.45, out.Conditions[0].Confidence)

	assert.Equal(t, "medium", out.Conditions[1].Severity)
	assert.Equal(t, 0.0, out.Conditions[1].Confidence)

	assert.Equal(t, MaxConditionName, utf8.RuneCountInString(out.Conditions[2].Name))
	assert.Len(t, out.Conditions[2].Code, MaxConditionCode)
	assert.Equal(t, DefaultConfidence, out.Conditions[2].Confidence)
}

func TestFallbackOutcomes(t *testing.T) {
	failed := FailedOutcome("Ошибка API: 500")
	assert.Equal(t, KindFailed, failed.Kind)
	assert.Equal(t, "Анализ не выполнен: Ошибка API: 500", failed.Summary)
	assert.Equal(t, 0.0, failed.Confidence)
	assert.Equal(t, "Ошибка API: 500", failed.Payload()["error"])

	timeout := TimeoutOutcome()
	assert.Equal(t, 0.4, timeout.Confidence)
	assert.Equal(t, "timeout", timeout.Error)
}

func TestRenderPrompt(t *testing.T) {
	long := strings.Repeat("б", 2000)
	prompt := RenderPrompt("", long, "text/plain", "a.txt")
	assert.True(t, strings.HasPrefix(prompt, "ТЫ — ВРАЧ-ЛАБОРАНТ."))
	assert.Contains(t, prompt, strings.Repeat("б", MaxPromptText))
	assert.NotContains(t, prompt, strings.Repeat("б", MaxPromptText+1))
	assert.Contains(t, prompt, `"condition_name": "анемия"`)

	custom := RenderPrompt("Файл {file_name} ({file_type}): {text_data}", "Hb 120", "pdf", "lab.pdf")
	assert.Equal(t, "Файл lab.pdf (pdf): Hb 120", custom)
}
