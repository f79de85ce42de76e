package anvil

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// DefaultExt расширение файлов регионов формата Anvil
const DefaultExt = "mca"

// Loader открывает регионы одного каталога по координатам.
// Не хранит состояния, безопасен для параллельного использования.
type Loader struct {
	dir string
	ext string
}

// NewLoader создаёт загрузчик для каталога регионов
func NewLoader(dir, ext string) *Loader {
	if ext == "" {
		ext = DefaultExt
	}
	return &Loader{dir: dir, ext: ext}
}

// Ext возвращает расширение файлов регионов
func (l *Loader) Ext() string {
	return l.ext
}

// Path возвращает путь к файлу региона (rx, rz)
func (l *Loader) Path(rx, rz int) string {
	return filepath.Join(l.dir, FileName(rx, rz, l.ext))
}

// Region открывает регион (rx, rz). Если файла нет, возвращает nil, nil.
func (l *Loader) Region(rx, rz int) (*Region, error) {
	r, err := Open(l.Path(rx, rz), rx, rz)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FileName формирует имя файла региона r.<rx>.<rz>.<ext>
func FileName(rx, rz int, ext string) string {
	return fmt.Sprintf("r.%d.%d.%s", rx, rz, ext)
}
