package scanner

import (
	"bytes"
	"testing"
)

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page /MediaBox [0 0 612 792] >>"))
	f.Add([]byte("[ 1 2.5 -3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("(Hello \\(World\\))"))
	f.Add([]byte("<AABBC>"))
	f.Add([]byte("5 0 R"))
	f.Add([]byte("/Name#20With#20Spaces"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(bytes.NewReader(data), Config{
			MaxStringLength: 1024,
			MaxArrayDepth:   10,
			MaxDictDepth:    10,
			MaxStreamLength: 1024,
			MaxStreamScan:   2048,
			MaxInlineImage:  1024,
			WindowSize:      64,
		})

		for {
			_, err := s.Next()
			if err != nil {
				break
			}
		}
	})
}
