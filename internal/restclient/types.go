package restclient

import "encoding/json"

type APIInfo struct {
	Service          string            `json:"service"`
	Version          string            `json:"version"`
	Capabilities     []string          `json:"capabilities"`
	SupportedFormats []string          `json:"supported_formats"`
	APIEndpoints     map[string]string `json:"api_endpoints"`
}

type ToolInfo struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Priority     int      `json:"priority"`
}

type ToolList struct {
	Total int        `json:"total"`
	Tools []ToolInfo `json:"tools"`
}

// AnalyzeRequest mirrors the backend's content analysis request. Upload
// sources carry base64 FileData instead of Content.
type AnalyzeRequest struct {
	SourceType      string                 `json:"source_type" validate:"oneof=upload url text"`
	Content         string                 `json:"content,omitempty" validate:"required_unless=SourceType upload"`
	FileData        string                 `json:"file_data,omitempty" validate:"required_if=SourceType upload"`
	FileName        string                 `json:"file_name,omitempty"`
	FileType        string                 `json:"file_type,omitempty"`
	AnalysisOptions map[string]interface{} `json:"analysis_options,omitempty"`
}

type AnalysisResult struct {
	RequestID        string                     `json:"request_id"`
	Timestamp        string                     `json:"timestamp"`
	SourceType       string                     `json:"source_type"`
	Results          map[string]json.RawMessage `json:"results"`
	ConfidenceScores map[string]float64         `json:"confidence_scores"`
	Recommendations  []string                   `json:"recommendations"`
	Visualizations   json.RawMessage            `json:"visualizations,omitempty"`
}

type UploadResponse struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Purpose     string `json:"purpose"`
	Status      string `json:"status"`
}

type BatchRequest struct {
	Items    []AnalyzeRequest `json:"items" validate:"required,min=1,dive"`
	Parallel bool             `json:"parallel"`
}

type BatchItemResult struct {
	Index  int             `json:"index"`
	Status string          `json:"status"`
	Result *AnalysisResult `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type BatchResponse struct {
	BatchID            string            `json:"batch_id"`
	TotalItems         int               `json:"total_items"`
	ParallelProcessing bool              `json:"parallel_processing"`
	Results            []BatchItemResult `json:"results"`
	Timestamp          string            `json:"timestamp"`
}

// Failed returns the batch items that did not succeed.
func (b *BatchResponse) Failed() []BatchItemResult {
	var failed []BatchItemResult
	for _, r := range b.Results {
		if r.Status != "success" {
			failed = append(failed, r)
		}
	}
	return failed
}

type ToolExecutionRequest struct {
	ToolName       string                 `json:"tool_name" validate:"required"`
	Parameters     map[string]interface{} `json:"parameters"`
	AsyncExecution bool                   `json:"async_execution"`
	WebhookURL     string                 `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

type ToolExecutionResponse struct {
	ExecutionID string          `json:"execution_id"`
	Status      string          `json:"status"`
	ToolName    string          `json:"tool_name"`
	Async       bool            `json:"async"`
	Message     string          `json:"message,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}
