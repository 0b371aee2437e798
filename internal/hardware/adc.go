package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsADC reads an IIO converter through sysfs
type SysfsADC struct {
	root   string
	device string
}

func NewSysfsADC(device string) *SysfsADC {
	return &SysfsADC{root: IioSysfsRoot, device: device}
}

func (a *SysfsADC) ReadAnalog(channel int) (int, error) {
	path := filepath.Join(a.root, a.device, fmt.Sprintf("in_voltage%d_raw", channel))

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return -1, fmt.Errorf("ADC sysfs not found: %s", path)
	}
	if err != nil {
		return -1, fmt.Errorf("failed reading %s: %w", path, err)
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1, fmt.Errorf("failed parsing ADC value: %w", err)
	}
	return value, nil
}

// MultiRead samples several channels in order
func (a *SysfsADC) MultiRead(channels []int) ([]int, error) {
	values := make([]int, len(channels))
	for i, ch := range channels {
		v, err := a.ReadAnalog(ch)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
