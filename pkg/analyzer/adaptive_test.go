package analyzer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestExtractResult_Canonical(t *testing.T) {
	res := ExtractResult(decode(t, `{"score": 0.8, "text": "intrusion"}`))
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, "intrusion", res.Text)
}

func TestExtractResult_ClampsScore(t *testing.T) {
	assert.Equal(t, 1.0, ExtractResult(decode(t, `{"score": 3.5, "text": "x"}`)).Score)
	assert.Equal(t, 0.0, ExtractResult(decode(t, `{"score": -2, "text": "x"}`)).Score)
}

func TestExtractResult_NumericString(t *testing.T) {
	res := ExtractResult(decode(t, `{"score": "0.6", "text": "x"}`))
	assert.Equal(t, 0.6, res.Score)
}

func TestExtractResult_AnalysisWrapperConclusion(t *testing.T) {
	res := ExtractResult(decode(t, `{
		"analisis": {
			"conclusion": "nothing unusual",
			"anomalías_detectadas": []
		}
	}`))
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "nothing unusual", res.Text)
}

func TestExtractResult_AnalysisWrapperAnomalies(t *testing.T) {
	res := ExtractResult(decode(t, `{
		"analisis": {
			"resumen_eventos": "repeated failed logins",
			"anomalías_detectadas": ["bruteforce"]
		}
	}`))
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, "repeated failed logins", res.Text)
}

func TestExtractResult_AnalysisWrapperAlertFlag(t *testing.T) {
	res := ExtractResult(decode(t, `{
		"alerta": true,
		"analisis": {"conclusion": "intruder detected"}
	}`))
	assert.Equal(t, 0.9, res.Score)
	assert.Equal(t, "intruder detected", res.Text)
}

func TestExtractResult_ConclusionObject(t *testing.T) {
	res := ExtractResult(decode(t, `{
		"conclusion": {"comentario": "odd traffic", "riesgos_detectados": true}
	}`))
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, "odd traffic", res.Text)
}

func TestExtractResult_ConclusionUnusualActivity(t *testing.T) {
	res := ExtractResult(decode(t, `{
		"conclusion": {"descripcion": "late-night access", "actividad_inusual": true}
	}`))
	assert.Equal(t, 0.7, res.Score)
	assert.Equal(t, "late-night access", res.Text)
}

func TestExtractResult_ConclusionString(t *testing.T) {
	res := ExtractResult(decode(t, `{"conclusion": "all quiet"}`))
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "all quiet", res.Text)
}

func TestExtractResult_RootComment(t *testing.T) {
	assert.Equal(t, "via comentario", ExtractResult(decode(t, `{"comentario": "via comentario"}`)).Text)
	assert.Equal(t, "via summary", ExtractResult(decode(t, `{"summary": "via summary"}`)).Text)
}

func TestExtractResult_RootAlertFlagWithoutWrapper(t *testing.T) {
	res := ExtractResult(decode(t, `{"alerta": true, "summary": "alarm tripped"}`))
	assert.Equal(t, 0.9, res.Score)
	assert.Equal(t, "alarm tripped", res.Text)
}

func TestExtractResult_DumpFallback(t *testing.T) {
	res := ExtractResult(decode(t, `{"unexpected": {"shape": 1}}`))
	assert.Equal(t, 0.0, res.Score)
	// Last resort: the full object serialized so nothing is lost.
	assert.Contains(t, res.Text, `"unexpected"`)
	assert.NotEmpty(t, res.Text)
}

func TestExtractResult_NestedTextSerializes(t *testing.T) {
	res := ExtractResult(decode(t, `{"score": 0.5, "text": {"detail": "x"}}`))
	assert.Equal(t, 0.5, res.Score)
	assert.Contains(t, res.Text, `"detail"`)
}

func TestParseJSONContent(t *testing.T) {
	raw, ok := parseJSONContent(`{"score": 0.8, "text": "x"}`)
	require.True(t, ok)
	assert.Equal(t, 0.8, raw["score"])

	// Markdown fences are tolerated.
	raw, ok = parseJSONContent("```json\n{\"score\": 0.5, \"text\": \"y\"}\n```")
	require.True(t, ok)
	assert.Equal(t, 0.5, raw["score"])

	_, ok = parseJSONContent("no json at all")
	assert.False(t, ok)
}

func TestParseJSONContent_RegexFallback(t *testing.T) {
	content := `score: 0.8, looks bad. details follow {"score":0.8,"text":"intrusion"} end of report`
	raw, ok := parseJSONContent(content)
	require.True(t, ok)

	res := ExtractResult(raw)
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, "intrusion", res.Text)
}
