package nbt

// Compound значение TagCompound.
// Значения: int8, int16, int32, int64, float32, float64, []byte, string, List, Compound, []int32, []int64.
type Compound map[string]any

// List значение TagList; Type хранит тип элементов, в том числе для пустого списка
type List struct {
	Type  TagType
	Items []any
}

// Compound возвращает вложенный Compound
func (c Compound) Compound(name string) (Compound, bool) {
	v, ok := c[name].(Compound)
	return v, ok
}

// List возвращает список
func (c Compound) List(name string) (List, bool) {
	v, ok := c[name].(List)
	return v, ok
}

// String возвращает строковое значение
func (c Compound) String(name string) (string, bool) {
	v, ok := c[name].(string)
	return v, ok
}

// Int возвращает любое целочисленное значение, приведённое к int64
func (c Compound) Int(name string) (int64, bool) {
	switch v := c[name].(type) {
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// LongArray возвращает TagLongArray
func (c Compound) LongArray(name string) ([]int64, bool) {
	v, ok := c[name].([]int64)
	return v, ok
}

// ByteArray возвращает TagByteArray
func (c Compound) ByteArray(name string) ([]byte, bool) {
	v, ok := c[name].([]byte)
	return v, ok
}

// Compounds возвращает элементы списка, если это список Compound.
// Пустой список любого типа считается пустым списком Compound.
func (l List) Compounds() ([]Compound, bool) {
	if len(l.Items) == 0 {
		return nil, true
	}
	if l.Type != TagCompound {
		return nil, false
	}
	out := make([]Compound, len(l.Items))
	for i, item := range l.Items {
		out[i] = item.(Compound)
	}
	return out, true
}
