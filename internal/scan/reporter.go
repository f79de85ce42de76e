package scan

import (
	"fmt"
	"io"
	"sync"
)

// Hit найденный блок
type Hit struct {
	Target string
	Chunk  ChunkCoord
	Region RegionCoord
}

// Reporter пишет по одной строке на событие. Каждая строка уходит
// одним вызовом Write под мьютексом, так что строки разных горутин не перемешиваются.
type Reporter struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	err error
}

// NewReporter создаёт Reporter поверх w (обычно os.Stdout)
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Hit сообщает о найденном блоке
func (r *Reporter) Hit(h Hit) {
	r.line("YAY! %s is in chunk %v in %v", Label(h.Target), h.Chunk, h.Region)
}

// Progress сообщает о завершении региона; done равно числу регионов, завершённых до него
func (r *Reporter) Progress(region RegionCoord, done, total int) {
	r.line("Finished region %v: %d/%d", region, done, total)
}

// RegionError сообщает, что регион не удалось открыть
func (r *Reporter) RegionError(region RegionCoord, err error) {
	r.line("Error loading region %v: %v", region, err)
}

// ChunkError сообщает, что чанк не удалось декодировать
func (r *Reporter) ChunkError(c ChunkCoord, region RegionCoord, err error) {
	r.line("Error reading chunk %v in %v: %v", c, region, err)
}

// Err возвращает первую ошибку записи
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Reporter) line(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = fmt.Appendf(r.buf[:0], format, args...)
	r.buf = append(r.buf, '\n')
	if _, err := r.w.Write(r.buf); err != nil && r.err == nil {
		r.err = err
	}
}
