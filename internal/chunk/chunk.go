// Package chunk декодирует NBT чанка в секции с палитрами блоков
// и даёт упорядоченный обход всех блоков.
package chunk

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/annel0/eggscan/internal/nbt"
)

const (
	// SectionVolume блоков в секции 16x16x16
	SectionVolume = 16 * 16 * 16

	// DataVersionFlattening первая версия с палитрами строковых имён (17w47a)
	DataVersionFlattening = 1451
	// DataVersionPaddedStates с этой версии индекс не пересекает границу long (20w17a)
	DataVersionPaddedStates = 2529
)

var (
	ErrMalformedChunk    = errors.New("chunk: malformed chunk")
	ErrUnsupportedFormat = errors.New("chunk: unsupported chunk format")
)

// Block запись палитры: имя блока и его свойства
type Block struct {
	name       string
	properties map[string]string
}

// NewBlock создаёт запись палитры
func NewBlock(name string, properties map[string]string) Block {
	return Block{name: name, properties: properties}
}

// Name возвращает имя блока с пространством имён, например "minecraft:dragon_egg"
func (b *Block) Name() string {
	return b.name
}

// Property возвращает значение свойства состояния блока
func (b *Block) Property(key string) (string, bool) {
	v, ok := b.properties[key]
	return v, ok
}

// String форматирует блок как name[key=value,...]
func (b *Block) String() string {
	if len(b.properties) == 0 {
		return b.name
	}
	keys := make([]string, 0, len(b.properties))
	for k := range b.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(b.name)
	sb.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b.properties[k])
	}
	sb.WriteByte(']')
	return sb.String()
}

// Section вертикальная секция чанка 16x16x16
type Section struct {
	Y       int
	Palette []Block

	// indices в порядке YZX; nil, если вся секция состоит из Palette[0]
	indices []uint16
}

// At возвращает блок по индексу YZX (0..4095)
func (s *Section) At(i int) *Block {
	if s.indices == nil {
		return &s.Palette[0]
	}
	return &s.Palette[s.indices[i]]
}

// HasBlock проверяет, есть ли в палитре запись, удовлетворяющая pred
func (s *Section) HasBlock(pred func(*Block) bool) bool {
	for i := range s.Palette {
		if pred(&s.Palette[i]) {
			return true
		}
	}
	return false
}

// Blocks обходит все 4096 блоков секции в порядке YZX
func (s *Section) Blocks() iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for i := 0; i < SectionVolume; i++ {
			if !yield(s.At(i)) {
				return
			}
		}
	}
}

// Chunk декодированный чанк
type Chunk struct {
	X, Z        int
	DataVersion int
	Sections    []Section
}

// Blocks обходит блоки, удовлетворяющие match, в порядке хранения секций.
// Секции, в палитре которых нет подходящей записи, пропускаются целиком.
// nil match обходит все блоки. Указатели действительны, пока жив Chunk.
func (c *Chunk) Blocks(match func(*Block) bool) iter.Seq[*Block] {
	return func(yield func(*Block) bool) {
		for i := range c.Sections {
			sec := &c.Sections[i]
			if match != nil && !sec.HasBlock(match) {
				continue
			}
			for b := range sec.Blocks() {
				if match != nil && !match(b) {
					continue
				}
				if !yield(b) {
					return
				}
			}
		}
	}
}

// Decode разбирает распакованные NBT-данные чанка.
// Поддерживаются форматы 1.18+ (sections в корне) и 1.13–1.17 (Level.Sections).
func Decode(data []byte) (*Chunk, error) {
	_, root, err := nbt.DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	dv, _ := root.Int("DataVersion")
	c := &Chunk{DataVersion: int(dv)}

	if _, ok := root["sections"]; ok {
		err = c.decode(root, "sections", "block_states", "palette", "data", false)
	} else {
		level, ok := root.Compound("Level")
		if !ok {
			return nil, fmt.Errorf("%w: neither sections nor Level present", ErrMalformedChunk)
		}
		if c.DataVersion != 0 && c.DataVersion < DataVersionFlattening {
			return nil, fmt.Errorf("%w: pre-flattening data version %d", ErrUnsupportedFormat, c.DataVersion)
		}
		err = c.decode(level, "Sections", "", "Palette", "BlockStates", c.DataVersion < DataVersionPaddedStates)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// decode читает позицию и секции из compound.
// statesKey: имя вложенного compound с палитрой ("" если палитра лежит прямо в секции).
func (c *Chunk) decode(parent nbt.Compound, sectionsKey, statesKey, paletteKey, dataKey string, spanning bool) error {
	x, okX := parent.Int("xPos")
	z, okZ := parent.Int("zPos")
	if !okX || !okZ {
		return fmt.Errorf("%w: missing xPos/zPos", ErrMalformedChunk)
	}
	c.X, c.Z = int(x), int(z)

	list, ok := parent.List(sectionsKey)
	if !ok {
		if _, present := parent[sectionsKey]; present {
			return fmt.Errorf("%w: %s is not a list", ErrMalformedChunk, sectionsKey)
		}
		return nil
	}
	sections, ok := list.Compounds()
	if !ok {
		return fmt.Errorf("%w: %s is a list of %v", ErrMalformedChunk, sectionsKey, list.Type)
	}

	for _, sec := range sections {
		y, _ := sec.Int("Y")

		states := sec
		if statesKey != "" {
			if states, ok = sec.Compound(statesKey); !ok {
				continue
			}
		}

		paletteList, ok := states.List(paletteKey)
		if !ok {
			if _, legacy := sec.ByteArray("Blocks"); legacy {
				return fmt.Errorf("%w: numeric block ids in section %d", ErrUnsupportedFormat, y)
			}
			continue
		}

		section, err := decodeSection(int(y), paletteList, states, dataKey, spanning)
		if err != nil {
			return err
		}
		if section != nil {
			c.Sections = append(c.Sections, *section)
		}
	}
	return nil
}

func decodeSection(y int, paletteList nbt.List, states nbt.Compound, dataKey string, spanning bool) (*Section, error) {
	entries, ok := paletteList.Compounds()
	if !ok {
		return nil, fmt.Errorf("%w: section %d palette is a list of %v", ErrMalformedChunk, y, paletteList.Type)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if len(entries) > SectionVolume {
		return nil, fmt.Errorf("%w: section %d palette has %d entries", ErrMalformedChunk, y, len(entries))
	}

	s := &Section{Y: y, Palette: make([]Block, len(entries))}
	for i, e := range entries {
		name, ok := e.String("Name")
		if !ok {
			return nil, fmt.Errorf("%w: section %d palette entry %d has no Name", ErrMalformedChunk, y, i)
		}
		s.Palette[i] = Block{name: name, properties: properties(e)}
	}

	data, _ := states.LongArray(dataKey)
	if len(data) == 0 {
		if len(entries) == 1 {
			return s, nil
		}
		return nil, fmt.Errorf("%w: section %d has %d palette entries and no data", ErrMalformedChunk, y, len(entries))
	}

	width := BitsFor(len(entries))
	if need := PackedLen(SectionVolume, width, spanning); len(data) < need {
		return nil, fmt.Errorf("%w: section %d data has %d longs, want %d", ErrMalformedChunk, y, len(data), need)
	}

	s.indices = Unpack(data, SectionVolume, width, spanning)
	for i, idx := range s.indices {
		if int(idx) >= len(entries) {
			return nil, fmt.Errorf("%w: section %d block %d references palette entry %d of %d", ErrMalformedChunk, y, i, idx, len(entries))
		}
	}
	return s, nil
}

func properties(entry nbt.Compound) map[string]string {
	props, ok := entry.Compound("Properties")
	if !ok || len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
