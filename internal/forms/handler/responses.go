package handler

// Response shapes are fixed contract: callers never see internal error detail,
// only these envelopes.

type errorResponse struct {
	Error string `json:"error"`
}

type badRequestResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type submitResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submission_id"`
}

type healthResponse struct {
	Status string `json:"status"`
}
