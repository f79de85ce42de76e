package anvil

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const maxRecordSectors = 0xff

type pendingChunk struct {
	compression byte
	payload     []byte
	external    bool
	timestamp   uint32
}

// Writer собирает файл региона в памяти и пишет его целиком.
// Записи, не помещающиеся в 255 секторов, выносятся во внешний .mcc файл.
type Writer struct {
	X, Z        int
	Compression Compression

	chunks [ChunksPerRegion]*pendingChunk
}

// NewWriter создаёт Writer для региона (rx, rz) с указанным сжатием
func NewWriter(rx, rz int, c Compression) *Writer {
	return &Writer{X: rx, Z: rz, Compression: c}
}

// Put добавляет NBT-данные чанка с локальными координатами (lx, lz)
func (w *Writer) Put(lx, lz int, data []byte) error {
	payload, err := compress(w.Compression, data)
	if err != nil {
		return err
	}
	w.chunks[index(lx, lz)] = &pendingChunk{compression: byte(w.Compression), payload: payload}
	return nil
}

// PutExternal как Put, но данные всегда пишутся во внешний файл
func (w *Writer) PutExternal(lx, lz int, data []byte) error {
	if err := w.Put(lx, lz, data); err != nil {
		return err
	}
	w.chunks[index(lx, lz)].external = true
	return nil
}

// PutRaw записывает байт сжатия и payload как есть
func (w *Writer) PutRaw(lx, lz int, compression byte, payload []byte) {
	w.chunks[index(lx, lz)] = &pendingChunk{compression: compression, payload: payload}
}

// SetTimestamp задаёт метку времени чанка
func (w *Writer) SetTimestamp(lx, lz int, ts uint32) {
	if c := w.chunks[index(lx, lz)]; c != nil {
		c.timestamp = ts
	}
}

// WriteFile пишет регион в каталог dir под стандартным именем и возвращает путь
func (w *Writer) WriteFile(dir, ext string) (string, error) {
	if ext == "" {
		ext = DefaultExt
	}
	header := make([]byte, headerSize)
	body := make([]byte, 0, SectorSize)
	sector := headerSize / SectorSize

	for i, c := range w.chunks {
		if c == nil {
			continue
		}

		record := c.payload
		flag := c.compression
		sectors := sectorsFor(recordHeaderLen + len(record))
		if c.external || sectors > maxRecordSectors {
			cx := w.X*RegionWidth + i%RegionWidth
			cz := w.Z*RegionWidth + i/RegionWidth
			if err := os.WriteFile(filepath.Join(dir, ExternalName(cx, cz)), c.payload, 0o644); err != nil {
				return "", fmt.Errorf("ошибка записи внешнего чанка: %w", err)
			}
			record = nil
			flag |= externalFlag
			sectors = 1
		}

		buf := make([]byte, sectors*SectorSize)
		binary.BigEndian.PutUint32(buf, uint32(len(record)+1))
		buf[4] = flag
		copy(buf[recordHeaderLen:], record)
		body = append(body, buf...)

		binary.BigEndian.PutUint32(header[i*4:], uint32(sector<<8|sectors))
		binary.BigEndian.PutUint32(header[SectorSize+i*4:], c.timestamp)
		sector += sectors
	}

	path := filepath.Join(dir, FileName(w.X, w.Z, ext))
	if err := os.WriteFile(path, append(header, body...), 0o644); err != nil {
		return "", fmt.Errorf("ошибка записи региона: %w", err)
	}
	return path, nil
}

func sectorsFor(n int) int {
	return (n + SectorSize - 1) / SectorSize
}
