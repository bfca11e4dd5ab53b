package gigachat

import (
	"strings"
	"unicode/utf8"
)

// MaxPromptText is how much of the extracted text is embedded in a prompt.
const MaxPromptText = 1200

const (
	PlaceholderText     = "{text_data}"
	PlaceholderFileType = "{file_type}"
	PlaceholderFileName = "{file_name}"
)

// DefaultTemplate is used when no admin prompt is active for the file type.
const DefaultTemplate = `ТЫ — ВРАЧ-ЛАБОРАНТ. Проанализируй ЭТИ ЛАБОРАТОРНЫЕ ДАННЫЕ:

{text_data}

ОПРЕДЕЛИ:
1. Есть ли отклонения от нормы?
2. Какие заболевания или состояния возможны (анемия, воспаление, дефицит витаминов и т.д.)?
3. Дай рекомендации.

❗️ЕСЛИ ДАННЫЕ — это текстовое описание (например, рентген, УЗИ, КТ), то определи возможные диагнозы на основе описания.
Либо ты увидел где-то слово "Заключение", значит это диагноз
ВЕРНИ ОТВЕТ ТОЛЬКО В ФОРМАТЕ JSON С ТАКИМИ ПОЛЯМИ:
1. summary: краткое резюме анализа
2. detected_conditions: список найденных медицинских состояний
3. recommendations: рекомендации для пациента
4. confidence: общая уверенность анализа от 0 до 1

ПРИМЕР ОТВЕТА:
{"summary": "обнаружены признаки анемии", "detected_conditions": [{"condition_name": "анемия", "code": "D64.9", "confidence": 0.8, "severity": "medium"}], "recommendations": "консультация гематолога", "confidence": 0.8}`

// RenderPrompt fills the template placeholders. An empty template selects
// DefaultTemplate.
func RenderPrompt(template, text, fileType, fileName string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	return strings.NewReplacer(
		PlaceholderText, truncateRunes(text, MaxPromptText),
		PlaceholderFileType, fileType,
		PlaceholderFileName, fileName,
	).Replace(template)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
