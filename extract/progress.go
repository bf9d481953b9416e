package extract

// ProgressEvent reports extraction progress after each entry.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the entry name just processed, if applicable.
	Path string

	// BytesDone is the uncompressed size of the entries processed so far.
	BytesDone uint64

	// BytesTotal is the uncompressed size of the whole archive.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of entries processed, including failures.
	FilesDone int

	// FilesTotal is the number of entries in the archive.
	FilesTotal int
}

// ProgressStage identifies the current phase of an extraction.
type ProgressStage uint8

// Progress stages.
const (
	// StageListing indicates the central directory is being read.
	StageListing ProgressStage = iota

	// StageExtracting indicates entries are being written.
	StageExtracting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageListing:
		return "listing"
	case StageExtracting:
		return "extracting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates. Parallel extraction serializes
// calls, so implementations need not be safe for concurrent use.
type ProgressFunc func(ProgressEvent)

// WithProgress sets a callback invoked after each entry.
func WithProgress(fn ProgressFunc) Option {
	return func(x *Extractor) {
		x.progress = fn
	}
}

// tracker accumulates progress and forwards it to the callback.
type tracker struct {
	fn    ProgressFunc
	event ProgressEvent
}

func newTracker(fn ProgressFunc, files int, bytes uint64) *tracker {
	t := &tracker{fn: fn, event: ProgressEvent{
		Stage:      StageListing,
		FilesTotal: files,
		BytesTotal: bytes,
	}}
	t.emit()
	t.event.Stage = StageExtracting
	return t
}

func (t *tracker) done(name string, size uint32) {
	t.event.Path = name
	t.event.FilesDone++
	t.event.BytesDone += uint64(size)
	t.emit()
}

func (t *tracker) emit() {
	if t.fn != nil {
		t.fn(t.event)
	}
}
