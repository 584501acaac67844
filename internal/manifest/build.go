package manifest

import (
	"time"

	"exhume/internal/extract"
)

// Meta is the run context FromReport cannot derive from the report itself.
type Meta struct {
	RunID     string
	Extractor string
	Tool      *Tool
	Source    Source
	Config    RunConfig
	// VerifySignatures records whether header checks were enabled.
	VerifySignatures bool
}

// FromReport assembles the manifest for an extraction report. Sparse results
// appear only in the sparse count; failed and cancelled tasks are listed
// under failures.
func FromReport(report extract.Report, meta Meta) Manifest {
	m := Manifest{
		RunID:            meta.RunID,
		Extractor:        meta.Extractor,
		ExtractorVersion: Version,
		Tool:             meta.Tool,
		Source:           meta.Source,
		StartedAt:        report.StartedAt,
		CompletedAt:      report.CompletedAt,
		TotalBytes:       report.Stats.Bytes,
		ErrorCount:       report.Stats.Errors,
		WasCancelled:     report.Cancelled,
		ExtractionMode: ExtractionMode{
			UsedParallel:      report.Mode.UsedParallel,
			EffectiveWorkers:  report.Mode.EffectiveWorkers,
			ConfiguredWorkers: report.Mode.ConfiguredWorkers,
			ParallelEnabled:   report.Mode.ParallelEnabled,
			FallbackReason:    report.Mode.FallbackReason,
		},
		SignatureVerification: SignatureVerification{
			Enabled:    meta.VerifySignatures,
			Mismatches: report.Stats.Mismatches,
		},
		SparseFiles: SparseFiles{
			Count:       report.Stats.Sparse,
			Description: sparseDescription,
		},
		Config: meta.Config,
		Files:  []File{},
	}

	for _, res := range report.Results {
		switch {
		case res.Success:
			m.Files = append(m.Files, fileFromResult(res))
		case res.Sparse:
		default:
			m.Failures = append(m.Failures, Failure{
				SourcePath: res.Task.SourcePath,
				Error:      res.Error,
				Cancelled:  res.Cancelled,
			})
		}
	}
	m.TotalFiles = len(m.Files)
	return m
}

func fileFromResult(res extract.Result) File {
	task := res.Task
	f := File{
		SourcePath:     task.SourcePath,
		Filename:       task.Name,
		RelPath:        res.RelPath,
		SizeBytes:      res.BytesWritten,
		MD5:            res.MD5,
		SHA256:         res.SHA256,
		Modified:       timePtr(task.Times.Modified),
		Accessed:       timePtr(task.Times.Accessed),
		Created:        timePtr(task.Times.Created),
		Changed:        timePtr(task.Times.Changed),
		Inode:          task.Inode,
		Partition:      task.Partition,
		Deleted:        task.Deleted,
		CarveOffset:    task.CarveOffset,
		CarveBlockSize: task.CarveBlockSize,
	}
	if task.Size > 0 && task.Size != res.BytesWritten {
		f.Warnings = append(f.Warnings, "size_mismatch")
	}
	if res.SignatureChecked {
		detected := string(res.DetectedType)
		valid := res.SignatureValid
		if detected != "" {
			f.DetectedType = &detected
		}
		f.SignatureValid = &valid
		if !valid {
			f.Warnings = append(f.Warnings, "signature_mismatch")
		}
	}
	return f
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// Times returns the timestamps of f with absent ones as zero values.
func (f File) Times() (modified, accessed, created, changed time.Time) {
	deref := func(t *time.Time) time.Time {
		if t == nil {
			return time.Time{}
		}
		return *t
	}
	return deref(f.Modified), deref(f.Accessed), deref(f.Created), deref(f.Changed)
}
