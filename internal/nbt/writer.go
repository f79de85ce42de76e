package nbt

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Encoder пишет дерево тегов. Ключи Compound пишутся в отсортированном порядке,
// так что одинаковые деревья дают одинаковые байты.
type Encoder struct {
	w   *bufio.Writer
	buf [8]byte
}

// NewEncoder создаёт Encoder поверх w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode пишет корневой Compound с именем name
func Encode(w io.Writer, name string, root Compound) error {
	e := NewEncoder(w)
	if err := e.WriteTag(TagCompound, name); err != nil {
		return err
	}
	if err := e.WriteValue(root); err != nil {
		return err
	}
	return e.w.Flush()
}

// WriteTag пишет заголовок именованного тега
func (e *Encoder) WriteTag(typ TagType, name string) error {
	if err := e.w.WriteByte(byte(typ)); err != nil {
		return err
	}
	return e.writeString(name)
}

// WriteValue пишет значение, выбирая тип тега по типу Go
func (e *Encoder) WriteValue(v any) error {
	switch v := v.(type) {
	case int8:
		return e.w.WriteByte(byte(v))
	case int16:
		return e.writeUint(uint64(uint16(v)), 2)
	case int32:
		return e.writeUint(uint64(uint32(v)), 4)
	case int64:
		return e.writeUint(uint64(v), 8)
	case float32:
		return e.writeUint(uint64(math.Float32bits(v)), 4)
	case float64:
		return e.writeUint(math.Float64bits(v), 8)
	case []byte:
		if err := e.writeUint(uint64(len(v)), 4); err != nil {
			return err
		}
		_, err := e.w.Write(v)
		return err
	case string:
		return e.writeString(v)
	case List:
		return e.writeList(v)
	case Compound:
		return e.writeCompound(v)
	case []int32:
		if err := e.writeUint(uint64(len(v)), 4); err != nil {
			return err
		}
		for _, x := range v {
			if err := e.writeUint(uint64(uint32(x)), 4); err != nil {
				return err
			}
		}
		return nil
	case []int64:
		if err := e.writeUint(uint64(len(v)), 4); err != nil {
			return err
		}
		for _, x := range v {
			if err := e.writeUint(uint64(x), 8); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported value %T", ErrInvalidTag, v)
	}
}

func (e *Encoder) writeList(l List) error {
	if err := e.w.WriteByte(byte(l.Type)); err != nil {
		return err
	}
	if err := e.writeUint(uint64(len(l.Items)), 4); err != nil {
		return err
	}
	for _, item := range l.Items {
		if typeOf(item) != l.Type {
			return fmt.Errorf("%w: %T in list of %v", ErrInvalidTag, item, l.Type)
		}
		if err := e.WriteValue(item); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeCompound(c Compound) error {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		typ := typeOf(c[k])
		if typ == TagEnd {
			return fmt.Errorf("%w: %s has unsupported value %T", ErrInvalidTag, k, c[k])
		}
		if err := e.WriteTag(typ, k); err != nil {
			return err
		}
		if err := e.WriteValue(c[k]); err != nil {
			return err
		}
	}
	return e.w.WriteByte(byte(TagEnd))
}

func (e *Encoder) writeString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes", ErrInvalidTag, len(s))
	}
	if err := e.writeUint(uint64(len(s)), 2); err != nil {
		return err
	}
	_, err := e.w.WriteString(s)
	return err
}

func (e *Encoder) writeUint(v uint64, size int) error {
	switch size {
	case 2:
		binary.BigEndian.PutUint16(e.buf[:2], uint16(v))
	case 4:
		binary.BigEndian.PutUint32(e.buf[:4], uint32(v))
	default:
		binary.BigEndian.PutUint64(e.buf[:8], v)
	}
	_, err := e.w.Write(e.buf[:size])
	return err
}

func typeOf(v any) TagType {
	switch v.(type) {
	case int8:
		return TagByte
	case int16:
		return TagShort
	case int32:
		return TagInt
	case int64:
		return TagLong
	case float32:
		return TagFloat
	case float64:
		return TagDouble
	case []byte:
		return TagByteArray
	case string:
		return TagString
	case List:
		return TagList
	case Compound:
		return TagCompound
	case []int32:
		return TagIntArray
	case []int64:
		return TagLongArray
	}
	return TagEnd
}
