package scan

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/annel0/eggscan/internal/logging"
)

var (
	ErrDirRead       = errors.New("cannot read world directory")
	ErrFilenameParse = errors.New("malformed region filename")
)

// FilenameError имя файла похоже на регион, но координаты не разбираются
type FilenameError struct {
	Name string
}

func (e *FilenameError) Error() string {
	return fmt.Sprintf("%v %q", ErrFilenameParse, e.Name)
}

func (e *FilenameError) Unwrap() error {
	return ErrFilenameParse
}

// MalformedPolicy что делать с некорректным именем региона
type MalformedPolicy int

const (
	// MalformedFatal останавливает сканирование до старта
	MalformedFatal MalformedPolicy = iota
	// MalformedSkip пропускает файл с предупреждением в лог
	MalformedSkip
)

// ParseMalformedPolicy разбирает "fatal" или "skip"
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch strings.ToLower(s) {
	case "", "fatal":
		return MalformedFatal, nil
	case "skip":
		return MalformedSkip, nil
	}
	return MalformedFatal, fmt.Errorf("unknown malformed filename policy %q", s)
}

// ParseRegionName разбирает имя r.<x>.<z>.<ext>.
// candidate == false, если имя вообще не похоже на файл региона.
func ParseRegionName(name, ext string) (coord RegionCoord, candidate bool, err error) {
	if !strings.HasPrefix(name, "r.") || !strings.HasSuffix(name, "."+ext) {
		return RegionCoord{}, false, nil
	}

	fields := strings.Split(name, ".")
	if len(fields) != 4 {
		return RegionCoord{}, true, &FilenameError{Name: name}
	}

	x, errX := parseCoord(fields[1])
	z, errZ := parseCoord(fields[2])
	if errX != nil || errZ != nil {
		return RegionCoord{}, true, &FilenameError{Name: name}
	}
	return RegionCoord{X: x, Z: z}, true, nil
}

// parseCoord принимает только каноничную запись, чтобы имя файла
// однозначно восстанавливалось из координат
func parseCoord(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if strconv.Itoa(v) != s {
		return 0, fmt.Errorf("non-canonical integer %q", s)
	}
	return v, nil
}

// Enumerate перечисляет регионы в каталоге мира.
// Подкаталоги и файлы, не похожие на регионы, пропускаются молча.
func Enumerate(dir, ext string, policy MalformedPolicy) ([]RegionCoord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrDirRead, dir, err)
	}

	regions := make([]RegionCoord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		coord, candidate, err := ParseRegionName(entry.Name(), ext)
		if !candidate {
			logging.Trace("Пропуск %s: не файл региона", entry.Name())
			continue
		}
		if err != nil {
			if policy == MalformedSkip {
				logging.Warn("Пропуск файла: %v", err)
				continue
			}
			return nil, err
		}
		regions = append(regions, coord)
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Less(regions[j]) })
	logging.Debug("Найдено регионов в %s: %d", dir, len(regions))
	return regions, nil
}
