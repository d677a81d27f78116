package sandbox

import gencode "github.com/nevindra/gencode"

// executeRequest is the JSON body of POST /execute.
type executeRequest struct {
	ExecutionID string `json:"execution_id"`
	Code        string `json:"code"`
	Timeout     int    `json:"timeout,omitempty"` // seconds
}

// executeResponse is the JSON body returned by POST /execute.
type executeResponse struct {
	ExecutionID string              `json:"execution_id"`
	Succeeded   bool                `json:"succeeded"`
	Text        string              `json:"text"`
	Kind        gencode.OutcomeKind `json:"kind"`
	DurationMS  int64               `json:"duration_ms"`
}

func (r executeResponse) outcome() gencode.ExecutionOutcome {
	if r.Succeeded {
		return gencode.Success(r.Text)
	}
	return gencode.Failure(r.Kind, r.Text)
}
