package models

// PushReport summarises one push pass of the field device.
type PushReport struct {
	Batches   int `json:"batches"`
	Synced    int `json:"synced"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

// PullReport summarises one pull pass of the field device.
type PullReport struct {
	Pages   int `json:"pages"`
	Fetched int `json:"fetched"`
	Applied int `json:"applied"`

	// Stalled is set when the feed reported more items but the cursor did
	// not advance.
	Stalled bool `json:"stalled"`
}

// SyncReport is the outcome of a full push-then-pull cycle.
type SyncReport struct {
	Push PushReport `json:"push"`
	Pull PullReport `json:"pull"`
}
