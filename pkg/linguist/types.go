package linguist

// Status is the per-file state reported through Hooks.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusClassified Status = "classified"
	StatusUnknown    Status = "unknown"
	StatusCached     Status = "cached"
	StatusIgnored    Status = "ignored"
	StatusBinary     Status = "binary"
	StatusFailed     Status = "failed"
)

// Input selects what a run classifies. When Files is empty the whole tree
// under Root is walked. Otherwise only the listed files (and the trees of
// listed folders) are classified; relative entries are resolved against Root.
// Result paths are always relative to Root and use forward slashes.
type Input struct {
	Root  string
	Files []string
}
