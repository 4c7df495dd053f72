package adapter

// Strategy selects which group of fields an adapter extracts for a tool.
type Strategy string

const (
	StrategyDeepfake    Strategy = "deepfake"
	StrategyAIDetection Strategy = "ai_detection"
	StrategyText        Strategy = "text"
	StrategyC2PA        Strategy = "c2pa"
	StrategyNone        Strategy = "none"
)

// Rule maps a case-insensitive tool-name substring to a strategy.
// Rules are evaluated in order; the first hit wins.
type Rule struct {
	Contains string
	Strategy Strategy
}

// ScoreField is a candidate location for a score and the range the tool reports it in.
type ScoreField struct {
	Path string
	Min  float64
	Max  float64
}

func unit(path string) ScoreField {
	return ScoreField{Path: path, Min: 0, Max: 1}
}

func percent(path string) ScoreField {
	return ScoreField{Path: path, Min: 0, Max: 100}
}

// FieldMap lists, per target field, the source paths to try in priority order.
// Paths use dotted notation for nested objects.
type FieldMap struct {
	DetectionType DetectionType
	Score         []ScoreField
	Confidence    []string
	Errors        []string

	// Detail arrays (sentence or frame level) and the keys read from each item.
	DetailArrays []string
	DetailScore  []ScoreField
	DetailText   []string

	Anomalies      []string
	AnomalyDetails []string

	// Comprehensive video analysis carries one facial and one general-AI score.
	FacialScore  []ScoreField
	GeneralScore []ScoreField

	ValidFlags       []string
	CredentialFields []string
	CredentialFlags  []string
	ValidationErrors []string
	Tampering        []string
	TrustStatus      []string
}

var DefaultRules = []Rule{
	{Contains: "deepfake", Strategy: StrategyDeepfake},
	{Contains: "ai", Strategy: StrategyAIDetection},
	{Contains: "detect", Strategy: StrategyAIDetection},
	{Contains: "text", Strategy: StrategyText},
	{Contains: "c2pa", Strategy: StrategyC2PA},
}

var commonAnomalies = []string{
	"metadata.anomalies",
	"local_analysis.anomalies",
	"metadata_analysis.anomalies",
	"anomalies",
}

var commonAnomalyDetails = []string{
	"metadata.details",
	"local_analysis",
	"metadata_analysis",
}

var sentenceDetails = FieldMap{
	DetailArrays: []string{"sentence_scores", "sentences", "detail_scores"},
	DetailScore:  []ScoreField{unit("score"), unit("ai_score"), unit("probability")},
	DetailText:   []string{"sentence", "text"},
}

var DefaultFields = map[Strategy]FieldMap{
	StrategyDeepfake: {
		DetectionType: DetectionDeepfake,
		Score: []ScoreField{
			unit("sightengine_analysis.deepfake_score"),
			unit("deepfake_score"),
			unit("video_analysis.average_deepfake_score"),
			unit("sightengine_analysis.video_analysis.average_deepfake_score"),
			unit("video_analysis.average_ai_score"),
			unit("ai_generated_score"),
			unit("score"),
			percent("overall_score"),
		},
		Confidence: []string{"confidence", "sightengine_analysis.confidence"},
		Errors:     []string{"error", "sightengine_analysis.error", "video_analysis.error"},
		FacialScore: []ScoreField{
			unit("video_analysis.facial_analysis.average_deepfake_score"),
			unit("sightengine_analysis.video_analysis.facial_analysis.average_deepfake_score"),
			unit("comprehensive_analysis.facial_score"),
		},
		GeneralScore: []ScoreField{
			unit("video_analysis.general_ai_analysis.average_ai_score"),
			unit("sightengine_analysis.video_analysis.general_ai_analysis.average_ai_score"),
			unit("comprehensive_analysis.general_ai_score"),
		},
		DetailArrays:   []string{"video_analysis.frame_results", "frame_results"},
		DetailScore:    []ScoreField{unit("deepfake_score"), unit("ai_generated_score"), unit("score")},
		DetailText:     []string{"timestamp", "frame"},
		Anomalies:      commonAnomalies,
		AnomalyDetails: commonAnomalyDetails,
	},
	StrategyAIDetection: {
		DetectionType: DetectionAIGenerated,
		Score: []ScoreField{
			unit("score"),
			unit("ai_score"),
			unit("ai_probability"),
			unit("probability"),
			unit("ai_generated_score"),
			unit("type.ai_generated"),
			unit("result.score"),
			unit("data.score"),
			percent("overall_score"),
		},
		Confidence:     []string{"confidence", "confidence_score"},
		DetailArrays:   sentenceDetails.DetailArrays,
		DetailScore:    sentenceDetails.DetailScore,
		DetailText:     sentenceDetails.DetailText,
		Anomalies:      commonAnomalies,
		AnomalyDetails: commonAnomalyDetails,
	},
	StrategyText: {
		DetectionType: DetectionAIGenerated,
		Score: []ScoreField{
			unit("score"),
			unit("ai_score"),
			unit("probability"),
			percent("overall_score"),
		},
		Confidence:   []string{"confidence", "confidence_score"},
		DetailArrays: sentenceDetails.DetailArrays,
		DetailScore:  sentenceDetails.DetailScore,
		DetailText:   sentenceDetails.DetailText,
	},
	StrategyC2PA: {
		Errors:           []string{"error"},
		ValidFlags:       []string{"is_valid", "valid", "validation.is_valid", "validation_result.is_valid"},
		CredentialFields: []string{"manifest", "manifest_data", "active_manifest", "manifests", "credential", "c2pa_data"},
		CredentialFlags:  []string{"has_manifest", "has_credentials", "has_c2pa"},
		ValidationErrors: []string{"validation_errors", "validation.validation_errors", "validation_result.validation_errors"},
		Tampering:        []string{"tampering_detected", "validation.tampering_detected", "validation_result.tampering_detected"},
		TrustStatus:      []string{"trust_status", "validation.trust_status", "trust_verification.trust_level"},
		Anomalies:        commonAnomalies,
		AnomalyDetails:   commonAnomalyDetails,
	},
}
