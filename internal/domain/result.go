package domain

// ResultTimeLayout is the layout used for Result.Timestamp.
const ResultTimeLayout = "2006-01-02 15:04:05"

// Result status values.
const (
	ResultStatusSuccess = "success"
	ResultStatusError   = "error"
)

// Usage reports token consumption of a model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result is the terminal outcome of a job. It is attached to the Job Record
// together with the Completed or Failed status and never changes afterwards.
type Result struct {
	Status       string `json:"status"`
	ReviewResult string `json:"review_result,omitempty"`
	Error        string `json:"error,omitempty"`
	SourceName   string `json:"source_name,omitempty"`
	SourcePath   string `json:"file_path,omitempty"`
	SourceSize   int64  `json:"file_size,omitempty"`
	Mode         string `json:"mode,omitempty"`
	ModelUsed    string `json:"model_used,omitempty"`
	Timestamp    string `json:"timestamp"`
	Usage        *Usage `json:"usage,omitempty"`
	ReportPath   string `json:"report_path,omitempty"`
}

// Succeeded reports whether the result describes a successful run.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == ResultStatusSuccess
}

// clone returns a copy that shares no pointers with r.
func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Usage != nil {
		u := *r.Usage
		c.Usage = &u
	}
	return &c
}
