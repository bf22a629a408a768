package strip

import (
	"errors"
	"fmt"

	"github.com/fkcurrie/matricks-golang/pkg/gpio"
)

// powered switches a supply line on while the wrapped driver is open
type powered struct {
	Driver
	pin *gpio.Pin
}

func withPower(driver Driver, chip string, line int) (Driver, error) {
	pin, err := gpio.NewPin(chip, line)
	if err != nil {
		return nil, fmt.Errorf("failed to enable strip power: %w", err)
	}
	if err := pin.SetValue(1); err != nil {
		pin.Close()
		return nil, fmt.Errorf("failed to enable strip power: %w", err)
	}
	return &powered{Driver: driver, pin: pin}, nil
}

// Close closes the driver, then cuts power
func (p *powered) Close() error {
	return errors.Join(p.Driver.Close(), p.pin.Close())
}
