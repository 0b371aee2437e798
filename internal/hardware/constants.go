package hardware

const (
	// Consumer label on requested GPIO lines
	Consumer = "robot-service"

	PwmSysfsRoot = "/sys/class/pwm"
	IioSysfsRoot = "/sys/bus/iio/devices"
)
