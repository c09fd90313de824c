package analyzer

import (
	"encoding/json"
	"strconv"
)

// The scoring model's output shape is not fully under our control: beside
// the canonical {score, text} object it has been observed wrapping its
// findings in an "analisis" object, a "conclusion" object or string, loose
// comment/summary keys, or signalling risk only through boolean flags.
// Extraction is an ordered chain of named strategies, each filling whatever
// the previous ones left missing, ending in a guaranteed-success dump.
type extractStrategy struct {
	name  string
	apply func(raw map[string]interface{}, p *partialResult)
}

type partialResult struct {
	score *float64
	text  string
}

var extractStrategies = []extractStrategy{
	{"canonical", extractCanonical},
	{"analysis_wrapper", extractAnalysisWrapper},
	{"conclusion", extractConclusion},
	{"root_comment", extractRootComment},
	{"alert_flag", extractAlertFlag},
	{"dump", extractDump},
}

// ExtractResult infers a (score, text) pair from an arbitrary decoded JSON
// object. Best-effort and total: it always produces a Result, with the score
// clamped into [0,1].
func ExtractResult(raw map[string]interface{}) Result {
	p := &partialResult{}
	for _, s := range extractStrategies {
		s.apply(raw, p)
		if p.score != nil && p.text != "" {
			break
		}
	}

	score := 0.0
	if p.score != nil {
		score = *p.score
	}
	return Result{Score: clamp01(score), Text: p.text}
}

func extractCanonical(raw map[string]interface{}, p *partialResult) {
	if p.score == nil {
		if v, ok := asFloat(raw["score"]); ok {
			p.score = &v
		}
	}
	if p.text == "" {
		p.text = asText(raw["text"])
	}
}

func extractAnalysisWrapper(raw map[string]interface{}, p *partialResult) {
	wrapper, ok := raw["analisis"].(map[string]interface{})
	if !ok {
		return
	}

	if p.text == "" {
		if t := asText(wrapper["conclusion"]); t != "" {
			p.text = t
		} else {
			p.text = asText(wrapper["resumen_eventos"])
		}
	}

	if p.score == nil {
		anomalies := asList(wrapper["anomalías_detectadas"])
		if anomalies == nil {
			anomalies = asList(wrapper["riesgos_detectados"])
		}
		switch {
		case raw["alerta"] == true:
			p.score = f(0.9)
		case len(anomalies) > 0:
			p.score = f(0.8)
		default:
			p.score = f(0.0)
		}
	}
}

func extractConclusion(raw map[string]interface{}, p *partialResult) {
	if p.text != "" {
		return
	}
	conc := raw["conclusion"]
	if conc == nil {
		return
	}

	if obj, ok := conc.(map[string]interface{}); ok {
		for _, key := range []string{"comentario", "text", "descripcion"} {
			if t := asText(obj[key]); t != "" {
				p.text = t
				break
			}
		}
		if p.text == "" {
			p.text = asText(obj)
		}
		if p.score == nil {
			if obj["riesgos_detectados"] == true {
				p.score = f(0.8)
			} else if obj["actividad_inusual"] == true {
				p.score = f(0.7)
			}
		}
		return
	}

	p.text = asText(conc)
}

func extractRootComment(raw map[string]interface{}, p *partialResult) {
	if p.text != "" {
		return
	}
	if t := asText(raw["comentario"]); t != "" {
		p.text = t
		return
	}
	p.text = asText(raw["summary"])
}

func extractAlertFlag(raw map[string]interface{}, p *partialResult) {
	if p.score == nil && raw["alerta"] == true {
		p.score = f(0.9)
	}
}

// extractDump is the last resort: the whole raw object serialized as the
// text, score defaulted to 0 by the caller.
func extractDump(raw map[string]interface{}, p *partialResult) {
	if p.text == "" {
		p.text = asText(raw)
	}
}

func f(v float64) *float64 { return &v }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// asFloat accepts JSON numbers and numeric strings.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// asText renders a value as display text; objects and lists serialize to
// indented JSON, nil renders empty.
func asText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]interface{}, []interface{}:
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return ""
		}
		return string(b)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func asList(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}
