package scan

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// countingWriter запоминает каждый вызов Write отдельно
type countingWriter struct {
	mu     sync.Mutex
	writes []string
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestReporterLines(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(&out)

	r.Hit(Hit{Target: "minecraft:dragon_egg", Chunk: ChunkCoord{3, 5}, Region: RegionCoord{0, 0}})
	r.Progress(RegionCoord{-1, -2}, 0, 4)
	r.RegionError(RegionCoord{1, 0}, ErrRegionAbsent)
	r.ChunkError(ChunkCoord{-3, -40}, RegionCoord{-1, -2}, errors.New("boom"))

	assert.Equal(t, strings.Join([]string{
		"YAY! Dragon egg is in chunk 3.5 in r.0.0",
		"Finished region r.-1.-2: 0/4",
		"Error loading region r.1.0: region file not found",
		"Error reading chunk -3.-40 in r.-1.-2: boom",
	}, "\n")+"\n", out.String())
	assert.NoError(t, r.Err())
}

// Каждая строка уходит одним Write, даже при конкурентных вызовах
func TestReporterAtomicLines(t *testing.T) {
	w := &countingWriter{}
	r := NewReporter(w)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Progress(RegionCoord{g, i}, i, 100)
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, w.writes, 800)
	seen := make(map[string]bool)
	for _, line := range w.writes {
		assert.True(t, strings.HasPrefix(line, "Finished region r."), line)
		assert.Equal(t, 1, strings.Count(line, "\n"), line)
		seen[line] = true
	}
	assert.Len(t, seen, 800)
	assert.True(t, seen[fmt.Sprintf("Finished region r.%d.%d: %d/100\n", 7, 99, 99)])
}

func TestReporterKeepsFirstWriteError(t *testing.T) {
	r := NewReporter(failingWriter{})
	r.Progress(RegionCoord{}, 0, 1)
	r.Progress(RegionCoord{}, 0, 1)
	assert.EqualError(t, r.Err(), "broken pipe")
}
