package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/homefleet-core/internal/infrastructure/mqtt"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxTypeLength     = 50
	maxLocationLength = 100
)

// ValidateDevice checks an operator-supplied device.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if len(d.Type) > maxTypeLength {
		return fmt.Errorf("%w: type exceeds %d characters", ErrInvalidDevice, maxTypeLength)
	}
	if len(d.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidDevice, maxLocationLength)
	}

	topics := map[string]string{
		"command_topic":   d.CommandTopic,
		"state_topic":     d.StateTopic,
		"telemetry_topic": d.TelemetryTopic,
	}
	for field, topic := range topics {
		if err := validateTopic(topic); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidDevice, field, err)
		}
	}
	return nil
}

// ValidateName checks a device name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if trimmed != name {
		return fmt.Errorf("%w: name has leading or trailing whitespace", ErrInvalidDevice)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidDevice, maxNameLength)
	}
	return nil
}

// validateTopic accepts empty or concrete topics. Devices publish and
// receive on concrete topics only.
func validateTopic(topic string) error {
	if topic == "" {
		return nil
	}
	if mqtt.IsWildcard(topic) {
		return fmt.Errorf("topic %q contains a wildcard", topic)
	}
	return mqtt.ValidateFilter(topic)
}

// GenerateID creates a new device ID.
func GenerateID() string {
	return uuid.NewString()
}
