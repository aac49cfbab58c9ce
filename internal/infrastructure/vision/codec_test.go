package vision

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdCodec_DecodeFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(7, 5, color.RGBA{R: 1, A: 255})))

	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	img, err := NewStdCodec().DecodeFile(path)
	require.NoError(t, err)
	require.Equal(t, 7, img.Bounds().Dx())
	require.Equal(t, 5, img.Bounds().Dy())
}

func TestStdCodec_DecodeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	_, err := NewStdCodec().DecodeFile(path)
	require.Error(t, err)
}

func TestStdCodec_EncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewStdCodec().EncodePNG(&buf, solid(3, 3, color.White)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 3, img.Bounds().Dx())
}

func TestStdCodec_DecodeConfigFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(640, 480, color.Black)))

	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	cfg, err := NewStdCodec().DecodeConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, 640, cfg.Width)
	require.Equal(t, 480, cfg.Height)

	garbage := filepath.Join(t.TempDir(), "in.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o600))
	_, err = NewStdCodec().DecodeConfigFile(garbage)
	require.Error(t, err)
}
