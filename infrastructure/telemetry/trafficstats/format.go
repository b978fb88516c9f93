package trafficstats

import "fmt"

var binaryUnits = []string{"B", "KiB", "MiB", "GiB", "TiB"}

func FormatRate(bytesPerSecond uint64) string {
	return formatBinary(float64(bytesPerSecond)) + "/s"
}

func FormatTotal(bytes uint64) string {
	return formatBinary(float64(bytes))
}

func formatBinary(value float64) string {
	unit := 0
	for value >= 1024 && unit < len(binaryUnits)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%.0f %s", value, binaryUnits[unit])
	}
	return fmt.Sprintf("%.1f %s", value, binaryUnits[unit])
}
