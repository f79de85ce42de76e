package scan

import "fmt"

// RegionCoord координаты региона на сетке регионов
type RegionCoord struct {
	X, Z int
}

// String форматирует регион как r.<x>.<z>
func (r RegionCoord) String() string {
	return fmt.Sprintf("r.%d.%d", r.X, r.Z)
}

// Less задаёт порядок (X, Z)
func (r RegionCoord) Less(o RegionCoord) bool {
	if r.X != o.X {
		return r.X < o.X
	}
	return r.Z < o.Z
}

// ChunkCoord координаты чанка в глобальном пространстве чанков
type ChunkCoord struct {
	X, Z int
}

// String форматирует чанк как <x>.<z>
func (c ChunkCoord) String() string {
	return fmt.Sprintf("%d.%d", c.X, c.Z)
}
