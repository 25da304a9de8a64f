package conflict

import "errors"

var (
	ErrManualResolutionRequiresData = errors.New("manual resolution requires resolved data")
	ErrMergeRequiresObjects         = errors.New("merge requires JSON object documents")
	ErrUnsupportedStrategy          = errors.New("unsupported resolution strategy")
)
