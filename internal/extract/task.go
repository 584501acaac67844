package extract

import (
	"sort"
	"time"

	"exhume/internal/evidence"
	"exhume/internal/signature"
)

// Task is one immutable extraction candidate.
type Task struct {
	SourcePath string
	Name       string
	Size       int64
	Times      evidence.Times
	Inode      string
	Partition  int
	Deleted    bool

	// Carve provenance; nil for filesystem discoveries.
	CarveOffset    *int64
	CarveBlockSize *int64
}

// NewTask converts a container entry into a task.
func NewTask(e evidence.Entry) Task {
	name := e.Name
	if name == "" {
		name = baseName(e.Path)
	}
	return Task{
		SourcePath: e.Path,
		Name:       name,
		Size:       e.Size,
		Times:      e.Times,
		Inode:      e.Inode,
		Partition:  e.Partition,
		Deleted:    e.Deleted,
	}
}

// NewTasks converts entries into tasks sorted by source path. Entries that
// repeat a (partition, path) pair are dropped after the first.
func NewTasks(entries []evidence.Entry) []Task {
	type key struct {
		partition int
		path      string
	}
	seen := make(map[key]struct{}, len(entries))
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		k := key{e.Partition, e.Path}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		tasks = append(tasks, NewTask(e))
	}
	sortTasks(tasks)
	return tasks
}

// sortTasks orders by the NFC form of the source path, then the raw path,
// then partition.
func sortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := evidence.SortKey(tasks[i].SourcePath), evidence.SortKey(tasks[j].SourcePath)
		if a != b {
			return a < b
		}
		if tasks[i].SourcePath != tasks[j].SourcePath {
			return tasks[i].SourcePath < tasks[j].SourcePath
		}
		return tasks[i].Partition < tasks[j].Partition
	})
}

// Result is the outcome of exactly one task.
type Result struct {
	Task Task

	Success bool
	// Destination is the absolute output path; RelPath is relative to the
	// output directory. Both are empty when nothing was kept.
	Destination  string
	RelPath      string
	MD5          string
	SHA256       string
	BytesWritten int64
	Sparse       bool
	Cancelled    bool
	Error        string

	// Signature verification, populated only when enabled and content was read.
	SignatureChecked bool
	DetectedType     signature.Kind
	SignatureValid   bool
}

// Stats aggregates a run.
type Stats struct {
	Extracted  int64
	Bytes      int64
	Errors     int64
	Sparse     int64
	Mismatches int64
}

// Mode records how a run was scheduled, for audit.
type Mode struct {
	UsedParallel      bool
	EffectiveWorkers  int
	ConfiguredWorkers int
	ParallelEnabled   bool
	// FallbackReason is set when a parallel run was downgraded to sequential.
	FallbackReason string
}

// Report is everything a run produced.
type Report struct {
	Results     []Result
	Stats       Stats
	Mode        Mode
	Cancelled   bool
	StartedAt   time.Time
	CompletedAt time.Time
}

// Succeeded returns the results that landed on disk, in source-path order.
func (r Report) Succeeded() []Result {
	out := make([]Result, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res)
		}
	}
	return out
}
