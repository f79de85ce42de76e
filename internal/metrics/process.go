package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessUsage потребление ресурсов процессом сканера
type ProcessUsage struct {
	CPUPercent float64 // среднее с момента запуска процесса
	RSSMB      float64
}

// CurrentProcessUsage снимает CPU и RSS текущего процесса через gopsutil
func CurrentProcessUsage() (ProcessUsage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessUsage{}, err
	}

	var usage ProcessUsage
	if usage.CPUPercent, err = proc.CPUPercent(); err != nil {
		return ProcessUsage{}, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return ProcessUsage{}, err
	}
	usage.RSSMB = float64(mem.RSS) / 1024 / 1024
	return usage, nil
}
