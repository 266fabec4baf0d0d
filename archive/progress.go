package archive

// ProgressEvent reports progress of a multi-file operation.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the file currently being processed, if applicable.
	Path string

	// BytesDone is the number of input bytes completed so far.
	BytesDone uint64

	// FilesDone is the number of files completed.
	FilesDone int

	// FilesTotal is the total number of files.
	// Zero indicates the total is unknown (e.g., during enumeration).
	FilesTotal int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for packing, checking and extraction.
const (
	// StageEnumerating indicates PackPaths is walking the directory tree.
	StageEnumerating ProgressStage = iota

	// StageEncoding indicates files are being encoded.
	StageEncoding

	// StageWriting indicates the archive is being written.
	StageWriting

	// StageChecking indicates Fsck is decoding entries.
	StageChecking

	// StageExtracting indicates files are being extracted.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageEnumerating:
		return "enumerating"
	case StageEncoding:
		return "encoding"
	case StageWriting:
		return "writing"
	case StageChecking:
		return "checking"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
