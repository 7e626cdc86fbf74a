package domain

// RunSummary counts what one generate, submit or settle invocation did
type RunSummary struct {
	Employees     int `json:"employees"`
	Skipped       int `json:"skipped"`
	PendingLines  int `json:"pending_lines"`
	ReviewLines   int `json:"review_lines"`
	RaisedEntries int `json:"raised_entries"`
}
