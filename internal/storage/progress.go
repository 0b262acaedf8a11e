package storage

import "sync"

// ProgressReader turns the byte counts minio reports through
// PutObjectOptions.Progress into percentages.
type ProgressReader struct {
	mu       sync.Mutex
	total    int64
	done     int64
	last     int
	reporter Reporter
}

// NewProgressReader returns a reader for an upload of total bytes.
func NewProgressReader(total int64, reporter Reporter) *ProgressReader {
	return &ProgressReader{total: total, last: -1, reporter: reporter}
}

// Read records len(b) uploaded bytes. It never fails.
func (p *ProgressReader) Read(b []byte) (int, error) {
	p.mu.Lock()
	p.done += int64(len(b))
	percent := 100
	if p.total > 0 && p.done < p.total {
		percent = int(p.done * 100 / p.total)
	}
	changed := percent != p.last
	p.last = percent
	p.mu.Unlock()

	if changed {
		p.reporter.Report(percent)
	}
	return len(b), nil
}
