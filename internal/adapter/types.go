package adapter

import "encoding/json"

type DetectionType string

const (
	DetectionDeepfake    DetectionType = "deepfake"
	DetectionAIGenerated DetectionType = "ai_generated"
	DetectionMixed       DetectionType = "mixed"
	DetectionUnknown     DetectionType = "unknown"
)

type AIDetection struct {
	Score      float64       `json:"score"`
	Type       DetectionType `json:"type"`
	Confidence float64       `json:"confidence"`
}

type DetailScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Text  string  `json:"text,omitempty"`
}

type C2PAValidation struct {
	Valid         bool   `json:"valid"`
	HasCredential bool   `json:"has_credential"`
	Tampering     *bool  `json:"tampering,omitempty"`
	TrustStatus   string `json:"trust_status,omitempty"`
}

type MetadataSummary struct {
	Anomalies int             `json:"anomalies"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// UnifiedAnalysisResult is the tool-agnostic view of one tool result.
type UnifiedAnalysisResult struct {
	RiskScore      float64          `json:"risk_score"`
	AIDetection    AIDetection      `json:"ai_detection"`
	DetailScores   []DetailScore    `json:"detail_scores,omitempty"`
	C2PAValidation *C2PAValidation  `json:"c2pa_validation,omitempty"`
	Metadata       *MetadataSummary `json:"metadata,omitempty"`
	RawData        json.RawMessage  `json:"raw_data"`
}
