// Package nbt читает и пишет бинарный формат именованных тегов (NBT),
// в котором хранятся чанки мира: big-endian, без выравнивания.
package nbt

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// TagType идентификатор типа тега
type TagType byte

const (
	TagEnd       TagType = 0  // конец Compound, без имени
	TagByte      TagType = 1  // int8
	TagShort     TagType = 2  // int16
	TagInt       TagType = 3  // int32
	TagLong      TagType = 4  // int64
	TagFloat     TagType = 5  // float32, IEEE 754
	TagDouble    TagType = 6  // float64, IEEE 754
	TagByteArray TagType = 7  // int32 длина + байты
	TagString    TagType = 8  // uint16 длина + modified UTF-8
	TagList      TagType = 9  // тип элемента + int32 длина + значения без имён
	TagCompound  TagType = 10 // именованные теги до TagEnd
	TagIntArray  TagType = 11 // int32 длина + int32 значения
	TagLongArray TagType = 12 // int32 длина + int64 значения
)

const (
	// MaxDepth ограничивает вложенность List/Compound
	MaxDepth = 512
	// maxArrayLen ограничивает длину массивов и списков, чтобы битые данные не приводили к гигантским аллокациям
	maxArrayLen = 1 << 24
	// initialCap начальная ёмкость массивов и списков; дальше они растут по мере чтения,
	// поэтому объём памяти ограничен реально прочитанными байтами, а не заголовком длины
	initialCap = 1 << 10
)

var (
	ErrInvalidTag = errors.New("nbt: invalid tag")
	ErrTooDeep    = errors.New("nbt: nesting too deep")
)

var tagNames = [...]string{
	"TAG_End", "TAG_Byte", "TAG_Short", "TAG_Int", "TAG_Long", "TAG_Float", "TAG_Double",
	"TAG_Byte_Array", "TAG_String", "TAG_List", "TAG_Compound", "TAG_Int_Array", "TAG_Long_Array",
}

// String возвращает имя тега в нотации формата
func (t TagType) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("TAG_Unknown(%d)", byte(t))
}

// Reader декодирует поток тегов
type Reader struct {
	r     *bufio.Reader
	buf   [8]byte
	depth int
}

// NewReader оборачивает r буферизованным чтением
func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{r: br}
	}
	return &Reader{r: bufio.NewReader(r)}
}

// Decode читает корневой Compound и возвращает его имя и содержимое
func Decode(r io.Reader) (string, Compound, error) {
	nr := NewReader(r)
	typ, name, err := nr.ReadTag()
	if err != nil {
		return "", nil, unexpected(err)
	}
	if typ != TagCompound {
		return "", nil, fmt.Errorf("%w: root is %v, want %v", ErrInvalidTag, typ, TagCompound)
	}

	value, err := nr.ReadValue(typ)
	if err != nil {
		return name, nil, err
	}
	return name, value.(Compound), nil
}

// DecodeBytes то же, что Decode, для данных в памяти
func DecodeBytes(data []byte) (string, Compound, error) {
	return Decode(bytes.NewReader(data))
}

// ReadTag читает заголовок именованного тега. Для TagEnd имя пустое.
func (r *Reader) ReadTag() (TagType, string, error) {
	typ, err := r.readType()
	if err != nil || typ == TagEnd {
		return typ, "", err
	}

	name, err := r.ReadString()
	if err != nil {
		return typ, "", err
	}
	return typ, name, nil
}

// ReadValue читает значение тега указанного типа
func (r *Reader) ReadValue(typ TagType) (any, error) {
	switch typ {
	case TagByte:
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		return int8(b), nil
	case TagShort:
		v, err := r.readUint(2)
		return int16(v), err
	case TagInt:
		v, err := r.readUint(4)
		return int32(v), err
	case TagLong:
		v, err := r.readUint(8)
		return int64(v), err
	case TagFloat:
		v, err := r.readUint(4)
		return math.Float32frombits(uint32(v)), err
	case TagDouble:
		v, err := r.readUint(8)
		return math.Float64frombits(v), err
	case TagByteArray:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Grow(min(n, initialCap))
		if _, err := io.CopyN(&buf, r.r, int64(n)); err != nil {
			return nil, unexpected(err)
		}
		return buf.Bytes(), nil
	case TagString:
		return r.ReadString()
	case TagList:
		return r.readList()
	case TagCompound:
		return r.readCompound()
	case TagIntArray:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}
		values := make([]int32, 0, min(n, initialCap))
		for range n {
			v, err := r.readUint(4)
			if err != nil {
				return nil, err
			}
			values = append(values, int32(v))
		}
		return values, nil
	case TagLongArray:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}
		values := make([]int64, 0, min(n, initialCap))
		for range n {
			v, err := r.readUint(8)
			if err != nil {
				return nil, err
			}
			values = append(values, int64(v))
		}
		return values, nil
	default:
		return nil, fmt.Errorf("%w: type %d", ErrInvalidTag, byte(typ))
	}
}

// ReadString читает строку с префиксом длины uint16
func (r *Reader) ReadString() (string, error) {
	n, err := r.readUint(2)
	if err != nil {
		return "", err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return "", unexpected(err)
	}
	return string(data), nil
}

func (r *Reader) readList() (List, error) {
	if err := r.enter(); err != nil {
		return List{}, err
	}
	defer r.leave()

	elem, err := r.readType()
	if err != nil {
		return List{}, unexpected(err)
	}
	n, err := r.readLen()
	if err != nil {
		return List{}, err
	}
	if elem == TagEnd && n > 0 {
		return List{}, fmt.Errorf("%w: non-empty list of %v", ErrInvalidTag, elem)
	}

	list := List{Type: elem, Items: make([]any, 0, min(n, initialCap))}
	for i := 0; i < n; i++ {
		v, err := r.ReadValue(elem)
		if err != nil {
			return List{}, err
		}
		list.Items = append(list.Items, v)
	}
	return list, nil
}

func (r *Reader) readCompound() (Compound, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.leave()

	c := make(Compound)
	for {
		typ, name, err := r.ReadTag()
		if err != nil {
			return nil, unexpected(err)
		}
		if typ == TagEnd {
			return c, nil
		}
		v, err := r.ReadValue(typ)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c[name] = v
	}
}

func (r *Reader) enter() error {
	r.depth++
	if r.depth > MaxDepth {
		return ErrTooDeep
	}
	return nil
}

func (r *Reader) leave() { r.depth-- }

func (r *Reader) readType() (TagType, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return TagEnd, err
	}
	if b > byte(TagLongArray) {
		return TagEnd, fmt.Errorf("%w: type %d", ErrInvalidTag, b)
	}
	return TagType(b), nil
}

func (r *Reader) readLen() (int, error) {
	v, err := r.readUint(4)
	if err != nil {
		return 0, err
	}
	n := int32(v)
	if n < 0 || n > maxArrayLen {
		return 0, fmt.Errorf("%w: length %d", ErrInvalidTag, n)
	}
	return int(n), nil
}

func (r *Reader) readUint(size int) (uint64, error) {
	if _, err := io.ReadFull(r.r, r.buf[:size]); err != nil {
		return 0, unexpected(err)
	}
	switch size {
	case 2:
		return uint64(binary.BigEndian.Uint16(r.buf[:2])), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(r.buf[:4])), nil
	default:
		return binary.BigEndian.Uint64(r.buf[:8]), nil
	}
}

// unexpected превращает EOF посреди структуры в ErrUnexpectedEOF
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
