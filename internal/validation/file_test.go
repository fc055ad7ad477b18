package validation

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/transit/internal/file"
	"github.com/templui/transit/internal/mime"
	"gopkg.in/yaml.v3"
)

func pngFile(t *testing.T, width, height int) *file.File {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, width, height))))

	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := file.New(path, mime.Default())
	require.NoError(t, err)
	return f
}

func textFile(t *testing.T) *file.File {
	t.Helper()

	path := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	f, err := file.New(path, mime.Default())
	require.NoError(t, err)
	return f
}

func TestAllowEmptyShortCircuits(t *testing.T) {
	rules := Rules{
		AllowEmpty: true,
		Required:   true,
		Extension:  []string{"png"},
		Filesize:   10,
		Width:      100,
		MinHeight:  50,
	}

	// A nil file proves nothing gets decoded.
	assert.NoError(t, Validate(nil, false, rules))
}

func TestRequired(t *testing.T) {
	err := Validate(nil, false, Rules{Required: true})

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleRequired, verr.Rule)
	assert.Equal(t, "This file is required", verr.Message)

	assert.NoError(t, Validate(nil, false, Rules{}))
	assert.True(t, Required(true, true))
	assert.False(t, Required(false, true))
}

func TestExtensionAndMime(t *testing.T) {
	f := pngFile(t, 10, 10)

	assert.NoError(t, Validate(f, true, Rules{Extension: []string{"JPG", "PNG"}}))
	assert.NoError(t, Validate(f, true, Rules{MimeType: []string{"Image/PNG"}}))
	assert.NoError(t, Validate(f, true, Rules{Type: []string{"image"}}))

	err := Validate(f, true, Rules{Extension: []string{"jpg", "gif"}})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Your file extension is not allowed; allowed extensions: jpg, gif", verr.Message)

	err = Validate(f, true, Rules{MimeType: []string{"image/gif"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RuleMimeType, verr.Rule)

	err = Validate(f, true, Rules{Type: []string{"archive"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Your file type is not allowed; allowed types: archive", verr.Message)
}

func TestDimensions(t *testing.T) {
	f := pngFile(t, 200, 100)

	assert.NoError(t, Validate(f, true, Rules{Width: 200, Height: 100}))
	assert.NoError(t, Validate(f, true, Rules{MinWidth: 100, MaxWidth: 300, MinHeight: 100, MaxHeight: 100}))

	cases := map[string]Rules{
		RuleWidth:     {Width: 201},
		RuleHeight:    {Height: 99},
		RuleMinWidth:  {MinWidth: 201},
		RuleMinHeight: {MinHeight: 101},
		RuleMaxWidth:  {MaxWidth: 199},
		RuleMaxHeight: {MaxHeight: 99},
	}
	for rule, rules := range cases {
		err := Validate(f, true, rules)
		var verr *Error
		require.ErrorAs(t, err, &verr, rule)
		assert.Equal(t, rule, verr.Rule)
	}

	err := Validate(f, true, Rules{MaxWidth: 150})
	assert.EqualError(t, err, "Your image width is too large; maximum width 150")
}

func TestDimensionsFailClosed(t *testing.T) {
	f := textFile(t)

	assert.False(t, MinWidth(f, 1))
	assert.False(t, MaxWidth(f, 10000))
	assert.Error(t, Validate(f, true, Rules{MaxHeight: 10000}))
}

func TestFilesize(t *testing.T) {
	f := textFile(t)

	assert.NoError(t, Validate(f, true, Rules{Filesize: 11}))

	err := Validate(f, true, Rules{Filesize: 10})
	assert.EqualError(t, err, "Your file size is too large; maximum size 10 B")
}

func TestCustomMessage(t *testing.T) {
	f := textFile(t)

	err := Validate(f, true, Rules{
		Extension: []string{"pdf"},
		Messages:  map[string]string{RuleExtension: "PDF only (%s)"},
	})
	assert.EqualError(t, err, "PDF only (pdf)")
}

func TestRulesEmpty(t *testing.T) {
	assert.True(t, Rules{}.Empty())
	assert.True(t, Rules{AllowEmpty: true}.Empty())
	assert.False(t, Rules{MaxWidth: 1}.Empty())
}

func TestByteSizeYAML(t *testing.T) {
	var rules Rules
	require.NoError(t, yaml.Unmarshal([]byte("filesize: 5MB\nmaxWidth: 100\n"), &rules))
	assert.Equal(t, ByteSize(5_000_000), rules.Filesize)
	assert.Equal(t, 100, rules.MaxWidth)

	require.NoError(t, yaml.Unmarshal([]byte("filesize: 2048\n"), &rules))
	assert.Equal(t, ByteSize(2048), rules.Filesize)
	assert.Equal(t, "2.0 KiB", rules.Filesize.String())

	assert.Error(t, yaml.Unmarshal([]byte("filesize: lots\n"), &rules))
}
