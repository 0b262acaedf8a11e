package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	seen []int
}

func (r *recordingReporter) Report(percent int) {
	r.seen = append(r.seen, percent)
}

func TestProgressReader(t *testing.T) {
	rec := &recordingReporter{}
	pr := NewProgressReader(1000, rec)

	for _, n := range []int{100, 150, 1, 249, 500} {
		got, err := pr.Read(make([]byte, n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}

	assert.Equal(t, []int{10, 25, 50, 100}, rec.seen)
}

func TestProgressReaderEmptyUpload(t *testing.T) {
	rec := &recordingReporter{}
	_, err := NewProgressReader(0, rec).Read(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{100}, rec.seen)
}
