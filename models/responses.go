package models

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error                 string            `json:"error"`
	Issues                []ValidationIssue `json:"issues,omitempty"`
	UnauthorizedEntityIDs []string          `json:"unauthorizedEntityIds,omitempty"`
}

// ValidationIssue names one offending field of a request.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
