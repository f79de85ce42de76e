// Package worldtest собирает синтетические миры для тестов: NBT чанков
// в форматах 1.18+ и 1.13–1.17 и файлы регионов через anvil.Writer.
package worldtest

import (
	"bytes"
	"fmt"

	"github.com/annel0/eggscan/internal/anvil"
	"github.com/annel0/eggscan/internal/chunk"
	"github.com/annel0/eggscan/internal/nbt"
)

const (
	// DataVersionModern 1.20.1
	DataVersionModern = 3465
	// DataVersionSpanning 1.15.2, индексы пересекают границы long
	DataVersionSpanning = 2230
	// DataVersionPadded 1.17.1
	DataVersionPadded = 2730
)

// Section описание секции: палитра и индексы в порядке YZX.
// Indices == nil означает секцию целиком из Palette[0].
type Section struct {
	Y       int
	Palette []string
	Indices []uint16
}

// Uniform секция из одного блока
func Uniform(y int, name string) Section {
	return Section{Y: y, Palette: []string{name}}
}

// Fill секция из блока fill, в которой блоки по индексам из at заменены
func Fill(y int, fill string, at map[int]string) Section {
	s := Section{Y: y, Palette: []string{fill}, Indices: make([]uint16, chunk.SectionVolume)}
	pos := map[string]uint16{fill: 0}
	for i, name := range at {
		idx, ok := pos[name]
		if !ok {
			idx = uint16(len(s.Palette))
			pos[name] = idx
			s.Palette = append(s.Palette, name)
		}
		s.Indices[i] = idx
	}
	return s
}

// Index возвращает индекс YZX для локальных координат блока в секции
func Index(x, y, z int) int {
	return (y&15)<<8 | (z&15)<<4 | x&15
}

func (s Section) palette() nbt.List {
	items := make([]any, len(s.Palette))
	for i, name := range s.Palette {
		items[i] = nbt.Compound{"Name": name}
	}
	return nbt.List{Type: nbt.TagCompound, Items: items}
}

func (s Section) data(spanning bool) []int64 {
	if s.Indices == nil {
		return nil
	}
	return chunk.Pack(s.Indices, chunk.BitsFor(len(s.Palette)), spanning)
}

// ModernChunk NBT чанка формата 1.18+
func ModernChunk(cx, cz int, sections ...Section) nbt.Compound {
	items := make([]any, len(sections))
	for i, s := range sections {
		states := nbt.Compound{"palette": s.palette()}
		if d := s.data(false); d != nil {
			states["data"] = d
		}
		items[i] = nbt.Compound{"Y": int8(s.Y), "block_states": states}
	}
	return nbt.Compound{
		"DataVersion": int32(DataVersionModern),
		"xPos":        int32(cx),
		"zPos":        int32(cz),
		"Status":      "minecraft:full",
		"sections":    nbt.List{Type: nbt.TagCompound, Items: items},
	}
}

// LegacyChunk NBT чанка формата 1.13–1.17 (Level.Sections)
func LegacyChunk(cx, cz, dataVersion int, sections ...Section) nbt.Compound {
	spanning := dataVersion < chunk.DataVersionPaddedStates
	items := make([]any, len(sections))
	for i, s := range sections {
		sec := nbt.Compound{"Y": int8(s.Y), "Palette": s.palette()}
		if d := s.data(spanning); d != nil {
			sec["BlockStates"] = d
		}
		items[i] = sec
	}
	return nbt.Compound{
		"DataVersion": int32(dataVersion),
		"Level": nbt.Compound{
			"xPos":     int32(cx),
			"zPos":     int32(cz),
			"Sections": nbt.List{Type: nbt.TagCompound, Items: items},
		},
	}
}

// Encode сериализует корневой compound чанка
func Encode(root nbt.Compound) []byte {
	var buf bytes.Buffer
	if err := nbt.Encode(&buf, "", root); err != nil {
		panic(fmt.Sprintf("worldtest: %v", err))
	}
	return buf.Bytes()
}

// World набор регионов, записываемых в один каталог
type World struct {
	Dir         string
	Ext         string
	Compression anvil.Compression

	regions map[[2]int]*anvil.Writer
}

// NewWorld создаёт пустой мир в каталоге dir
func NewWorld(dir string) *World {
	return &World{
		Dir:         dir,
		Ext:         anvil.DefaultExt,
		Compression: anvil.CompressionZlib,
		regions:     make(map[[2]int]*anvil.Writer),
	}
}

func (w *World) region(cx, cz int) *anvil.Writer {
	rx, rz := anvil.RegionOf(cx, cz)
	key := [2]int{rx, rz}
	rw, ok := w.regions[key]
	if !ok {
		rw = anvil.NewWriter(rx, rz, w.Compression)
		w.regions[key] = rw
	}
	return rw
}

// Put кладёт чанк в регион, которому он принадлежит
func (w *World) Put(cx, cz int, root nbt.Compound) *World {
	if err := w.region(cx, cz).Put(cx&31, cz&31, Encode(root)); err != nil {
		panic(fmt.Sprintf("worldtest: %v", err))
	}
	return w
}

// PutBytes кладёт уже сериализованные (возможно битые) данные чанка
func (w *World) PutBytes(cx, cz int, data []byte) *World {
	if err := w.region(cx, cz).Put(cx&31, cz&31, data); err != nil {
		panic(fmt.Sprintf("worldtest: %v", err))
	}
	return w
}

// PutRaw кладёт запись с произвольным байтом сжатия и payload
func (w *World) PutRaw(cx, cz int, compression byte, payload []byte) *World {
	w.region(cx, cz).PutRaw(cx&31, cz&31, compression, payload)
	return w
}

// EmptyRegion добавляет регион без чанков
func (w *World) EmptyRegion(rx, rz int) *World {
	key := [2]int{rx, rz}
	if _, ok := w.regions[key]; !ok {
		w.regions[key] = anvil.NewWriter(rx, rz, w.Compression)
	}
	return w
}

// Write пишет все регионы на диск и возвращает их пути
func (w *World) Write() ([]string, error) {
	paths := make([]string, 0, len(w.regions))
	for _, rw := range w.regions {
		path, err := rw.WriteFile(w.Dir, w.Ext)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
