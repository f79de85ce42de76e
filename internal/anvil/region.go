// Package anvil читает файлы регионов мира (r.<x>.<z>.mca): заголовок из
// 1024 позиций и 1024 меток времени, за ним записи чанков, выровненные по секторам.
package anvil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
)

const (
	SectorSize      = 4096
	RegionWidth     = 32 // чанков по каждой оси
	ChunksPerRegion = RegionWidth * RegionWidth
	headerSize      = 2 * SectorSize
	recordHeaderLen = 5 // uint32 длина + байт сжатия
)

var (
	ErrRegionHeader           = errors.New("anvil: bad region header")
	ErrChunkCorrupt           = errors.New("anvil: corrupt chunk record")
	ErrChunkAbsent            = errors.New("anvil: chunk not present")
	ErrUnsupportedCompression = errors.New("anvil: unsupported compression")
)

// RawChunk распакованные данные одного чанка.
// X, Z: координаты в глобальном пространстве чанков.
type RawChunk struct {
	X, Z      int
	Timestamp uint32
	Data      []byte
}

// Location запись таблицы позиций: смещение в секторах << 8 | число секторов
type Location uint32

// Offset возвращает смещение записи в байтах
func (l Location) Offset() int64 {
	return int64(l>>8) * SectorSize
}

// Sectors возвращает число занятых секторов
func (l Location) Sectors() int {
	return int(l & 0xff)
}

// Region открытый файл региона
type Region struct {
	X, Z int

	path       string
	file       *os.File
	size       int64
	locations  [ChunksPerRegion]Location
	timestamps [ChunksPerRegion]uint32
}

// Open открывает файл региона и читает заголовок.
// Пустой файл считается корректным регионом без чанков.
func Open(path string, rx, rz int) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, err := load(f, path, rx, rz)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string, rx, rz int) (*Region, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r := &Region{X: rx, Z: rz, path: path, file: f, size: info.Size()}
	if r.size == 0 {
		return r, nil
	}
	if r.size < headerSize {
		return nil, fmt.Errorf("%w: file is %d bytes", ErrRegionHeader, r.size)
	}

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegionHeader, err)
	}
	for i := 0; i < ChunksPerRegion; i++ {
		r.locations[i] = Location(binary.BigEndian.Uint32(header[i*4:]))
		r.timestamps[i] = binary.BigEndian.Uint32(header[SectorSize+i*4:])
	}
	return r, nil
}

// Close освобождает файл региона
func (r *Region) Close() error {
	return r.file.Close()
}

// Path возвращает путь к файлу региона
func (r *Region) Path() string {
	return r.path
}

// Exists сообщает, есть ли чанк с локальными координатами (lx, lz)
func (r *Region) Exists(lx, lz int) bool {
	return r.locations[index(lx, lz)] != 0
}

// Count возвращает число чанков в заголовке
func (r *Region) Count() int {
	n := 0
	for _, loc := range r.locations {
		if loc != 0 {
			n++
		}
	}
	return n
}

// ReadChunk читает и распаковывает чанк с локальными координатами (lx, lz)
func (r *Region) ReadChunk(lx, lz int) (RawChunk, error) {
	i := index(lx, lz)
	raw := RawChunk{
		X:         r.X*RegionWidth + (lx & 31),
		Z:         r.Z*RegionWidth + (lz & 31),
		Timestamp: r.timestamps[i],
	}

	loc := r.locations[i]
	if loc == 0 {
		return raw, ErrChunkAbsent
	}

	data, err := r.readRecord(loc, raw.X, raw.Z)
	if err != nil {
		return raw, fmt.Errorf("chunk %d.%d: %w", raw.X, raw.Z, err)
	}
	raw.Data = data
	return raw, nil
}

// Chunks перебирает присутствующие чанки в порядке заголовка.
// Ошибка одной записи не прерывает перебор.
func (r *Region) Chunks() iter.Seq2[RawChunk, error] {
	return func(yield func(RawChunk, error) bool) {
		for i := 0; i < ChunksPerRegion; i++ {
			if r.locations[i] == 0 {
				continue
			}
			if !yield(r.ReadChunk(i%RegionWidth, i/RegionWidth)) {
				return
			}
		}
	}
}

func (r *Region) readRecord(loc Location, cx, cz int) ([]byte, error) {
	offset := loc.Offset()
	if offset < headerSize || loc.Sectors() == 0 {
		return nil, fmt.Errorf("%w: location %d/%d", ErrChunkCorrupt, offset/SectorSize, loc.Sectors())
	}
	if offset+recordHeaderLen > r.size {
		return nil, fmt.Errorf("%w: offset %d past end of file", ErrChunkCorrupt, offset)
	}

	var hdr [recordHeaderLen]byte
	if _, err := r.file.ReadAt(hdr[:], offset); err != nil {
		return nil, err
	}
	length := int64(binary.BigEndian.Uint32(hdr[:4]))
	compression := hdr[4]
	if length < 1 || offset+4+length > r.size {
		return nil, fmt.Errorf("%w: record length %d", ErrChunkCorrupt, length)
	}
	if 4+length > int64(loc.Sectors())*SectorSize {
		return nil, fmt.Errorf("%w: record length %d exceeds %d sectors", ErrChunkCorrupt, length, loc.Sectors())
	}

	var payload []byte
	if compression&externalFlag != 0 {
		data, err := os.ReadFile(filepath.Join(filepath.Dir(r.path), ExternalName(cx, cz)))
		if err != nil {
			return nil, fmt.Errorf("external payload: %w", err)
		}
		payload = data
		compression &^= externalFlag
	} else {
		payload = make([]byte, length-1)
		if _, err := r.file.ReadAt(payload, offset+recordHeaderLen); err != nil {
			return nil, err
		}
	}

	data, err := decompress(Compression(compression), payload)
	if err != nil {
		if errors.Is(err, ErrUnsupportedCompression) || errors.Is(err, ErrChunkCorrupt) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v: %v", ErrChunkCorrupt, Compression(compression), err)
	}
	return data, nil
}

// ExternalName имя файла с данными чанка, не поместившимися в регион
func ExternalName(cx, cz int) string {
	return fmt.Sprintf("c.%d.%d.mcc", cx, cz)
}

// RegionOf возвращает координаты региона, которому принадлежит чанк
func RegionOf(cx, cz int) (int, int) {
	return cx >> 5, cz >> 5
}

func index(lx, lz int) int {
	return (lx & 31) + (lz&31)*RegionWidth
}
