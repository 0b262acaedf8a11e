package upgrade

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarProgress(t *testing.T) {
	var buf bytes.Buffer
	bar := NewBarProgress(&buf)

	bar.Report(0)
	bar.Report(20)
	bar.Report(20)
	bar.Report(10)
	bar.Report(150)

	frames := strings.SplitAfter(buf.String(), "\r")
	assert.Equal(t, []string{
		"Sending WPK: [                         ] 0%   \r",
		"Sending WPK: [=====                    ] 20%   \r",
		"Sending WPK: [=========================] 100%   \r",
		"",
	}, frames)
}

func TestBarProgressClampsNegative(t *testing.T) {
	var buf bytes.Buffer
	NewBarProgress(&buf).Report(-5)
	assert.Equal(t, "Sending WPK: [                         ] 0%   \r", buf.String())
}

func TestNopProgress(t *testing.T) {
	assert.NotPanics(t, func() { NopProgress{}.Report(50) })
}
