package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/transit/internal/transit"
)

func TestParseSources(t *testing.T) {
	local := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	stdin := strings.NewReader("data")
	sources, err := parseSources([]string{
		"image=" + local,
		"cover=https://example.com/c.jpg",
		"doc=-",
		"empty=",
	}, stdin, "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, transit.Local{Path: local}, sources["image"])
	assert.Equal(t, transit.Remote{URL: "https://example.com/c.jpg"}, sources["cover"])
	assert.Equal(t, transit.Stream{Name: "scan.pdf", Reader: stdin}, sources["doc"])
	assert.Contains(t, sources, "empty")
	assert.Nil(t, sources["empty"])
}

func TestParseSourcesErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing separator", []string{"image"}},
		{"missing field", []string{"=a.png"}},
		{"duplicate", []string{"a=https://example.com/x", "a=https://example.com/y"}},
		{"stdin twice", []string{"a=-", "b=-"}},
		{"directory", []string{"a=" + t.TempDir()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSources(tt.args, strings.NewReader(""), "")
			assert.Error(t, err)
		})
	}
}

func TestParseSourcesMissingLocalFile(t *testing.T) {
	_, err := parseSources([]string{"image=./missing.jpg"}, strings.NewReader(""), "")
	require.ErrorIs(t, err, errSourceNotFound)
	assert.Contains(t, err.Error(), "./missing.jpg")
}
