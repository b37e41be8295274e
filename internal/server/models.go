package server

type ClipRequest struct {
	Text          string `json:"text"`
	VoiceID       string `json:"voiceId,omitempty"`
	VoiceProvider string `json:"voiceProvider,omitempty"`
	PresenterID   string `json:"presenterId,omitempty"`
	SourceURL     string `json:"sourceUrl,omitempty"`
	BgColor       string `json:"bgColor,omitempty"`
}

type ClipResponse struct {
	ResultURL string `json:"result_url"`
	JobID     string `json:"job_id,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`

	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}
