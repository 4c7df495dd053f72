package adapter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	defaultRiskScore   = 50
	c2paFailurePenalty = 80
	c2paValidPenalty   = 20
	anomalyWeight      = 10
)

// Adapter maps heterogeneous tool payloads onto UnifiedAnalysisResult.
// It is stateless and safe for concurrent use.
type Adapter struct {
	rules  []Rule
	fields map[Strategy]FieldMap
}

func New(rules []Rule, fields map[Strategy]FieldMap) *Adapter {
	return &Adapter{rules: rules, fields: fields}
}

var defaultAdapter = New(DefaultRules, DefaultFields)

// Adapt normalizes payload with the default mapping table.
func Adapt(toolName string, payload []byte) UnifiedAnalysisResult {
	return defaultAdapter.Adapt(toolName, payload)
}

// StrategyFor reports which strategy the default table picks for toolName.
func StrategyFor(toolName string) Strategy {
	return defaultAdapter.StrategyFor(toolName)
}

func (a *Adapter) StrategyFor(toolName string) Strategy {
	name := strings.ToLower(toolName)
	for _, rule := range a.rules {
		if strings.Contains(name, rule.Contains) {
			return rule.Strategy
		}
	}
	return StrategyNone
}

// extraction accumulates what a strategy found before the risk score is composed.
type extraction struct {
	result     UnifiedAnalysisResult
	hasScore   bool
	hasMetrics bool
}

func (a *Adapter) Adapt(toolName string, payload []byte) UnifiedAnalysisResult {
	raw := json.RawMessage("null")
	if len(payload) > 0 && gjson.ValidBytes(payload) {
		raw = append(json.RawMessage(nil), payload...)
	}

	ex := extraction{
		result: UnifiedAnalysisResult{
			AIDetection: AIDetection{Type: DetectionUnknown},
			RawData:     raw,
		},
	}

	strategy := a.StrategyFor(toolName)
	fields, ok := a.fields[strategy]
	if ok && gjson.ValidBytes(payload) {
		doc := gjson.ParseBytes(payload)
		if doc.IsObject() {
			switch strategy {
			case StrategyDeepfake:
				a.extractDeepfake(doc, fields, &ex)
			case StrategyAIDetection, StrategyText:
				a.extractScore(doc, fields, &ex)
			case StrategyC2PA:
				a.extractC2PA(doc, fields, &ex)
			}
		}
	}

	ex.result.RiskScore = composeRisk(&ex)
	return ex.result
}

func (a *Adapter) extractDeepfake(doc gjson.Result, fields FieldMap, ex *extraction) {
	facial, hasFacial := firstScore(doc, fields.FacialScore)
	general, hasGeneral := firstScore(doc, fields.GeneralScore)
	if hasFacial && hasGeneral {
		ex.result.AIDetection = AIDetection{
			Score:      math.Max(facial, general),
			Type:       DetectionMixed,
			Confidence: confidenceFor(doc, fields, math.Max(facial, general)),
		}
		ex.hasScore = true
		ex.result.DetailScores = detailScores(doc, fields)
		extractMetadata(doc, fields, ex)
		return
	}

	if _, failed := firstNonEmpty(doc, fields.Errors); failed {
		ex.result.AIDetection = AIDetection{Score: 0, Type: DetectionUnknown, Confidence: 0}
		ex.result.Metadata = &MetadataSummary{Anomalies: 1}
		ex.hasMetrics = true
		return
	}

	a.extractScore(doc, fields, ex)
}

func (a *Adapter) extractScore(doc gjson.Result, fields FieldMap, ex *extraction) {
	if score, ok := firstScore(doc, fields.Score); ok {
		ex.result.AIDetection = AIDetection{
			Score:      score,
			Type:       fields.DetectionType,
			Confidence: confidenceFor(doc, fields, score),
		}
		ex.hasScore = true
	}
	ex.result.DetailScores = detailScores(doc, fields)
	extractMetadata(doc, fields, ex)
}

func (a *Adapter) extractC2PA(doc gjson.Result, fields FieldMap, ex *extraction) {
	validation := &C2PAValidation{}
	ex.result.C2PAValidation = validation

	if _, failed := firstNonEmpty(doc, fields.Errors); failed {
		ex.result.Metadata = &MetadataSummary{Anomalies: 1}
		ex.hasMetrics = true
		return
	}

	explicitValid := false
	if flag, ok := firstBool(doc, fields.ValidFlags); ok {
		explicitValid = flag
	}

	hasManifest := false
	for _, path := range fields.CredentialFields {
		if r := doc.Get(path); r.Exists() && r.Type != gjson.Null {
			hasManifest = true
			break
		}
	}
	for _, path := range fields.CredentialFlags {
		if r := doc.Get(path); r.Type == gjson.True {
			hasManifest = true
			break
		}
	}

	hasErrors := false
	for _, path := range fields.ValidationErrors {
		r := doc.Get(path)
		if r.IsArray() && len(r.Array()) > 0 {
			hasErrors = true
			break
		}
	}

	validation.HasCredential = hasManifest || explicitValid
	validation.Valid = explicitValid || (hasManifest && !hasErrors)

	if tampered, ok := firstBool(doc, fields.Tampering); ok {
		validation.Tampering = &tampered
	}
	for _, path := range fields.TrustStatus {
		if r := doc.Get(path); r.Type == gjson.String && r.String() != "" {
			validation.TrustStatus = r.String()
			break
		}
	}

	extractMetadata(doc, fields, ex)
}

func extractMetadata(doc gjson.Result, fields FieldMap, ex *extraction) {
	for _, path := range fields.Anomalies {
		r := doc.Get(path)
		var count int
		switch {
		case r.IsArray():
			count = len(r.Array())
		case r.Type == gjson.Number:
			count = int(r.Int())
		default:
			continue
		}
		summary := &MetadataSummary{Anomalies: count}
		for _, detailPath := range fields.AnomalyDetails {
			if d := doc.Get(detailPath); d.Exists() && d.Type != gjson.Null {
				summary.Details = json.RawMessage(d.Raw)
				break
			}
		}
		ex.result.Metadata = summary
		ex.hasMetrics = true
		return
	}
}

func composeRisk(ex *extraction) float64 {
	var components []float64
	if ex.hasScore {
		components = append(components, ex.result.AIDetection.Score)
	}
	if v := ex.result.C2PAValidation; v != nil {
		tampered := v.Tampering != nil && *v.Tampering
		switch {
		case (v.HasCredential && !v.Valid) || tampered:
			components = append(components, c2paFailurePenalty)
		case v.HasCredential && v.Valid:
			components = append(components, c2paValidPenalty)
		}
	}
	if ex.hasMetrics && ex.result.Metadata != nil {
		components = append(components, math.Min(100, float64(ex.result.Metadata.Anomalies*anomalyWeight)))
	}

	if len(components) == 0 {
		return defaultRiskScore
	}
	var sum float64
	for _, c := range components {
		sum += c
	}
	return clamp(round2(sum / float64(len(components))))
}

func confidenceFor(doc gjson.Result, fields FieldMap, score float64) float64 {
	for _, path := range fields.Confidence {
		if v, ok := number(doc.Get(path)); ok {
			return math.Max(0, math.Min(1, v))
		}
	}
	return round2(math.Abs(score/100-0.5) * 2)
}

func detailScores(doc gjson.Result, fields FieldMap) []DetailScore {
	for _, path := range fields.DetailArrays {
		arr := doc.Get(path)
		if !arr.IsArray() {
			continue
		}
		var out []DetailScore
		for i, item := range arr.Array() {
			score, ok := firstScore(item, fields.DetailScore)
			if !ok {
				continue
			}
			detail := DetailScore{Index: i, Score: score}
			if idx := item.Get("index"); idx.Type == gjson.Number {
				detail.Index = int(idx.Int())
			}
			for _, key := range fields.DetailText {
				if t := item.Get(key); t.Exists() && t.Type != gjson.Null {
					detail.Text = t.String()
					break
				}
			}
			out = append(out, detail)
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// firstScore returns the first candidate that holds a number, rescaled to 0-100.
func firstScore(doc gjson.Result, candidates []ScoreField) (float64, bool) {
	for _, c := range candidates {
		v, ok := number(doc.Get(c.Path))
		if !ok {
			continue
		}
		return normalize(v, c.Min, c.Max), true
	}
	return 0, false
}

func firstBool(doc gjson.Result, paths []string) (bool, bool) {
	for _, path := range paths {
		r := doc.Get(path)
		if r.Type == gjson.True || r.Type == gjson.False {
			return r.Bool(), true
		}
	}
	return false, false
}

// firstNonEmpty finds the first path holding a non-null, non-false, non-empty value.
func firstNonEmpty(doc gjson.Result, paths []string) (gjson.Result, bool) {
	for _, path := range paths {
		r := doc.Get(path)
		switch r.Type {
		case gjson.Null, gjson.False:
			continue
		case gjson.String:
			if r.String() == "" {
				continue
			}
		}
		if r.Exists() {
			return r, true
		}
	}
	return gjson.Result{}, false
}

func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.String()), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func normalize(v, min, max float64) float64 {
	if max <= min {
		return clamp(round2(v))
	}
	return clamp(round2((v - min) / (max - min) * 100))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
