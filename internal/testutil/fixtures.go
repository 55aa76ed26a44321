package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// Fixture file names, matching the names the built-in suite expects.
const (
	FixtureUnoptimized = "jpegoptim_test1.jpg"
	FixtureOptimized   = "jpegoptim_test2.jpg"
	FixtureBroken      = "jpegoptim_test2-broken.jpg"
)

// scanData is filler that never contains an EOI marker.
var scanData = bytes.Repeat([]byte{0x12, 0x34, 0x56, 0x78}, 128)

// UnoptimizedJPEG returns an image with trailing garbage after EOI.
func UnoptimizedJPEG() []byte {
	b := optimizedJPEG()
	return append(b, bytes.Repeat([]byte{0x00}, 256)...)
}

// OptimizedJPEG returns an image the fake tool cannot shrink.
func OptimizedJPEG() []byte {
	return optimizedJPEG()
}

// BrokenJPEG returns an image truncated before its EOI marker.
func BrokenJPEG() []byte {
	b := optimizedJPEG()
	return b[:len(b)/2]
}

func optimizedJPEG() []byte {
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8})
	b.Write(scanData)
	b.Write([]byte{0xFF, 0xD9})
	return b.Bytes()
}

// WriteFixtures writes the three fixture images into dir.
func WriteFixtures(t *testing.T, dir string) {
	t.Helper()

	files := map[string][]byte{
		FixtureUnoptimized: UnoptimizedJPEG(),
		FixtureOptimized:   OptimizedJPEG(),
		FixtureBroken:      BrokenJPEG(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
}
