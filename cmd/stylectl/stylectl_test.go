package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { outputFormat = "human" })
	err := rootCmd.Execute()
	return out.String(), err
}

func writeStyles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumb.yaml"), []byte(`
name: thumb
transformations:
  - resize: {width: 50, height: 50}
output: jpeg
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boxed.yaml"), []byte(`
name: Boxed
transformations:
  - resize: {width: 80, height: 40}
  - embedWhite: {}
`), 0o644))
	return dir
}

func TestStylesValidate(t *testing.T) {
	out, err := execute(t, "styles", "validate", writeStyles(t))
	require.NoError(t, err)
	require.Contains(t, out, "2 style source(s) valid")

	bad := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, "broken.yaml"), []byte("name: x\ntransformations:\n  - rotate: {}\n"), 0o644))
	_, err = execute(t, "styles", "validate", bad)
	require.ErrorContains(t, err, "broken.yaml")
}

func TestStylesListJSON(t *testing.T) {
	out, err := execute(t, "styles", "list", "--format", "json", writeStyles(t))
	require.NoError(t, err)

	var summaries []styleSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Equal(t, []styleSummary{
		{Name: "Boxed", Steps: []string{"resize(80x40)", "embedWhite"}},
		{Name: "thumb", Steps: []string{"resize(50x50)"}, Output: "jpeg"},
	}, summaries)
}

func TestInspectAndPreview(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cat.png")
	img := image.NewNRGBA(image.Rect(0, 0, 120, 60))
	for x := 0; x < 120; x++ {
		img.Set(x, 30, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o644))

	out, err := execute(t, "inspect", src)
	require.NoError(t, err)
	require.Contains(t, out, "png 120x60")

	dst := filepath.Join(dir, "cat.thumb.png.png")
	out, err = execute(t, "preview", "thumb", src, "--styles-dir", writeStyles(t), "--out", dst)
	require.NoError(t, err)
	require.Contains(t, out, "png 50x50")

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, 50, cfg.Width)
}
