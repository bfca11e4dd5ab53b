package extraction

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) Recognize(context.Context, string) (string, error) {
	return f.text, f.err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writeDOCX(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.docx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractMissingFile(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), MediaTypeText)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileNotFound))
}

func TestExtractUTF8Text(t *testing.T) {
	path := writeFile(t, "lab.txt", []byte("Гемоглобин 120 г/л"))
	text, err := New(nil).Extract(context.Background(), path, MediaTypeText)
	require.NoError(t, err)
	assert.Equal(t, "Гемоглобин 120 г/л", text)
}

func TestExtractWindows1251Text(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte("Глюкоза 5.2 ммоль/л"))
	require.NoError(t, err)
	require.False(t, utf8.Valid(encoded))

	path := writeFile(t, "lab.txt", encoded)
	text, err := New(nil).Extract(context.Background(), path, "text/plain; charset=windows-1251")
	require.NoError(t, err)
	assert.Equal(t, "Глюкоза 5.2 ммоль/л", text)
}

func TestExtractTruncatesLongText(t *testing.T) {
	path := writeFile(t, "long.txt", []byte(strings.Repeat("я", MaxTextLength*2)))
	text, err := New(nil).Extract(context.Background(), path, MediaTypeText)
	require.NoError(t, err)
	assert.Equal(t, MaxTextLength, utf8.RuneCountInString(text))
}

func TestExtractDOCX(t *testing.T) {
	path := writeDOCX(t,
		`<w:p><w:r><w:t>Общий анализ крови</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>   </w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Гемоглобин </w:t></w:r><w:r><w:t>95 г/л</w:t></w:r></w:p>`)

	text, err := New(nil).Extract(context.Background(), path, MediaTypeDOCX)
	require.NoError(t, err)
	assert.Equal(t, "Общий анализ крови\nГемоглобин 95 г/л", text)
}

func TestExtractEmptyDOCX(t *testing.T) {
	path := writeDOCX(t, `<w:p></w:p>`)
	text, err := New(nil).Extract(context.Background(), path, MediaTypeDOCX)
	require.NoError(t, err)
	assert.Equal(t, "DOCX без текста", text)
}

func TestExtractCorruptFilesBecomePlaceholders(t *testing.T) {
	cases := []struct {
		name      string
		file      string
		mediaType string
		prefix    string
	}{
		{"pdf", "broken.pdf", MediaTypePDF, "Ошибка PDF:"},
		{"docx", "broken.docx", MediaTypeDOCX, "Ошибка DOCX:"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, []byte("this is not a real document"))
			text, err := New(nil).Extract(context.Background(), path, tc.mediaType)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(text, tc.prefix), text)
			assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxTextLength)
		})
	}
}

func TestExtractImage(t *testing.T) {
	path := writeFile(t, "scan.png", []byte{0x89, 'P', 'N', 'G'})

	t.Run("recognized", func(t *testing.T) {
		text, err := New(fakeOCR{text: "Лейкоциты 12"}).Extract(context.Background(), path, "image/png")
		require.NoError(t, err)
		assert.Equal(t, "Лейкоциты 12", text)
	})

	t.Run("blank", func(t *testing.T) {
		text, err := New(fakeOCR{text: " \n"}).Extract(context.Background(), path, "image/png")
		require.NoError(t, err)
		assert.Equal(t, "Изображение не содержит распознаваемого текста", text)
	})

	t.Run("engine error", func(t *testing.T) {
		text, err := New(fakeOCR{err: errors.New("boom")}).Extract(context.Background(), path, "image/png")
		require.NoError(t, err)
		assert.Equal(t, "Ошибка распознавания изображения: boom", text)
	})

	t.Run("long output", func(t *testing.T) {
		text, err := New(fakeOCR{text: strings.Repeat("x", 5000)}).Extract(context.Background(), path, "image/png")
		require.NoError(t, err)
		assert.Len(t, text, MaxTextLength)
	})

	t.Run("no engine", func(t *testing.T) {
		text, err := New(nil).Extract(context.Background(), path, "image/png")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(text, "Ошибка распознавания изображения"))
	})
}

func TestExtractUnknownType(t *testing.T) {
	path := writeFile(t, "data.bin", []byte{1, 2, 3})
	text, err := New(nil).Extract(context.Background(), path, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "Файл формата application/octet-stream. Не удалось извлечь текст.", text)
}

func TestDetectKindFallsBackToExtension(t *testing.T) {
	assert.Equal(t, kindPDF, detectKind("", "/x/a.PDF"))
	assert.Equal(t, kindDOCX, detectKind("application/octet-stream", "a.docx"))
	assert.Equal(t, kindText, detectKind("", "a.txt"))
	assert.Equal(t, kindImage, detectKind("", "a.jpeg"))
	assert.Equal(t, kindUnknown, detectKind("", "a.xls"))
	assert.Equal(t, kindText, detectKind("text/html; charset=utf-8", "a"))
}

func TestRowCellsSplitsOnGap(t *testing.T) {
	cells := rowCells(pdf.TextHorizontal{
		{X: 100, W: 20, S: "120"},
		{X: 10, W: 30, S: "Гемо"},
		{X: 40, W: 30, S: "глобин"},
		{X: 200, W: 20, S: "г/л"},
	})
	assert.Equal(t, []string{"Гемоглобин", "120", "г/л"}, cells)
}
