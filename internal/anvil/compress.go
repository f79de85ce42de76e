package anvil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// Compression тип сжатия записи чанка (байт после длины)
type Compression byte

const (
	CompressionGzip   Compression = 1
	CompressionZlib   Compression = 2
	CompressionNone   Compression = 3
	CompressionLZ4    Compression = 4
	CompressionCustom Compression = 127

	// externalFlag означает, что данные лежат в c.<x>.<z>.mcc рядом с регионом
	externalFlag = 0x80
)

// String возвращает название алгоритма
func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionCustom:
		return "custom"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

// decompress распаковывает payload записи
func decompress(c Compression, payload []byte) ([]byte, error) {
	switch c {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r)
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r)
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		return decodeLZ4Blocks(payload)
	case CompressionCustom:
		return nil, fmt.Errorf("%w: custom codec %q", ErrUnsupportedCompression, customCodecName(payload))
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCompression, c)
	}
}

// maxChunkSize предел размера распакованного чанка
const maxChunkSize = 1 << 25

// readLimited читает распакованный поток, не давая ему превысить maxChunkSize
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxChunkSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxChunkSize {
		return nil, fmt.Errorf("%w: decompressed size exceeds %d bytes", ErrChunkCorrupt, maxChunkSize)
	}
	return data, nil
}

// compress упаковывает данные; используется Writer
func compress(c Compression, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionZlib:
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionNone:
		buf.Write(data)
	case CompressionLZ4:
		return encodeLZ4Blocks(data)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCompression, c)
	}
	return buf.Bytes(), nil
}

// customCodecName достаёт имя кодека из префикса payload (строка в формате NBT)
func customCodecName(payload []byte) string {
	if len(payload) < 2 {
		return ""
	}
	n := int(binary.BigEndian.Uint16(payload))
	if len(payload) < 2+n {
		return ""
	}
	return string(payload[2 : 2+n])
}

// Потоковый формат LZ4Block (lz4-java): блоки с заголовком
// magic(8) token(1) compressed(4 LE) decompressed(4 LE) checksum(4 LE).
// Поток завершается пустым блоком.
const (
	lz4Magic         = "LZ4Block"
	lz4HeaderLen     = len(lz4Magic) + 13
	lz4MethodRaw     = 0x10
	lz4MethodLZ4     = 0x20
	lz4MaxBlockSize  = maxChunkSize
	lz4WriteBlockLen = 1 << 16
)

func decodeLZ4Blocks(src []byte) ([]byte, error) {
	var out []byte
	for len(src) > 0 {
		if len(src) < lz4HeaderLen || string(src[:len(lz4Magic)]) != lz4Magic {
			return nil, fmt.Errorf("%w: bad lz4 block header", ErrChunkCorrupt)
		}
		token := src[len(lz4Magic)]
		compressedLen := int(binary.LittleEndian.Uint32(src[9:13]))
		decompressedLen := int(binary.LittleEndian.Uint32(src[13:17]))
		// src[17:21] содержит xxhash32 блока; не проверяется
		src = src[lz4HeaderLen:]

		if compressedLen < 0 || decompressedLen < 0 || decompressedLen > lz4MaxBlockSize || compressedLen > len(src) {
			return nil, fmt.Errorf("%w: bad lz4 block lengths %d/%d", ErrChunkCorrupt, compressedLen, decompressedLen)
		}
		if decompressedLen == 0 {
			break
		}

		block := src[:compressedLen]
		src = src[compressedLen:]

		switch token & 0xf0 {
		case lz4MethodRaw:
			if compressedLen != decompressedLen {
				return nil, fmt.Errorf("%w: raw lz4 block length mismatch", ErrChunkCorrupt)
			}
			out = append(out, block...)
		case lz4MethodLZ4:
			dst := make([]byte, decompressedLen)
			n, err := lz4.UncompressBlock(block, dst)
			if err != nil {
				return nil, fmt.Errorf("%w: lz4: %v", ErrChunkCorrupt, err)
			}
			if n != decompressedLen {
				return nil, fmt.Errorf("%w: lz4 block decoded to %d bytes, want %d", ErrChunkCorrupt, n, decompressedLen)
			}
			out = append(out, dst...)
		default:
			return nil, fmt.Errorf("%w: lz4 block method 0x%x", ErrChunkCorrupt, token&0xf0)
		}
	}
	return out, nil
}

func encodeLZ4Blocks(data []byte) ([]byte, error) {
	var out bytes.Buffer
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(lz4WriteBlockLen))

	for len(data) > 0 {
		chunk := data[:min(len(data), lz4WriteBlockLen)]
		data = data[len(chunk):]

		n, err := c.CompressBlock(chunk, dst)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(chunk) {
			writeLZ4Header(&out, lz4MethodRaw, len(chunk), len(chunk))
			out.Write(chunk)
			continue
		}
		writeLZ4Header(&out, lz4MethodLZ4, n, len(chunk))
		out.Write(dst[:n])
	}
	writeLZ4Header(&out, lz4MethodRaw, 0, 0)
	return out.Bytes(), nil
}

func writeLZ4Header(out *bytes.Buffer, method byte, compressedLen, decompressedLen int) {
	var hdr [lz4HeaderLen]byte
	copy(hdr[:], lz4Magic)
	hdr[len(lz4Magic)] = method
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(compressedLen))
	binary.LittleEndian.PutUint32(hdr[13:17], uint32(decompressedLen))
	out.Write(hdr[:])
}
