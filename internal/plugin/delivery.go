package plugin

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fkcurrie/matricks-golang/internal/types"
)

// ConfigDelivery hands the matrix configuration to a plugin. Older
// plugins read it as key/value configuration, newer ones receive it as a
// JSON argument to setup.
type ConfigDelivery interface {
	// Name is the configuration value selecting this strategy
	Name() string
	// Apply adds the configuration to the manifest before instantiation
	Apply(m *Manifest, cfg types.MatrixConfiguration) error
	// SetupInput returns the argument passed to the setup export
	SetupInput(cfg types.MatrixConfiguration) ([]byte, error)
}

// Delivery strategy names
const (
	DeliveryJSON     = "json"
	DeliveryKeyValue = "keyvalue"
	DeliveryBoth     = "both"
)

// ParseDelivery returns the strategy with the given name
func ParseDelivery(name string) (ConfigDelivery, error) {
	switch name {
	case DeliveryJSON:
		return JSONDelivery{}, nil
	case DeliveryKeyValue:
		return KeyValueDelivery{}, nil
	case DeliveryBoth, "":
		return BothDelivery{}, nil
	default:
		return nil, fmt.Errorf("unknown config delivery %q", name)
	}
}

// JSONDelivery passes the configuration as a JSON object to setup
type JSONDelivery struct{}

// Name returns "json"
func (JSONDelivery) Name() string { return DeliveryJSON }

// Apply leaves the manifest unchanged
func (JSONDelivery) Apply(*Manifest, types.MatrixConfiguration) error { return nil }

// SetupInput encodes the configuration as JSON
func (JSONDelivery) SetupInput(cfg types.MatrixConfiguration) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode matrix configuration: %w", err)
	}
	return data, nil
}

// KeyValueDelivery exposes the configuration through the plugin config
// store and calls setup with no argument
type KeyValueDelivery struct{}

// Name returns "keyvalue"
func (KeyValueDelivery) Name() string { return DeliveryKeyValue }

// Apply stores every key from KeyValues in the manifest config
func (KeyValueDelivery) Apply(m *Manifest, cfg types.MatrixConfiguration) error {
	if m.Config == nil {
		m.Config = map[string]string{}
	}
	for k, v := range KeyValues(cfg) {
		m.Config[k] = v
	}
	return nil
}

// SetupInput returns no argument
func (KeyValueDelivery) SetupInput(types.MatrixConfiguration) ([]byte, error) { return nil, nil }

// BothDelivery uses the key/value store and the JSON argument together,
// which suits plugins of either generation
type BothDelivery struct{}

// Name returns "both"
func (BothDelivery) Name() string { return DeliveryBoth }

// Apply stores the key/value configuration
func (BothDelivery) Apply(m *Manifest, cfg types.MatrixConfiguration) error {
	return KeyValueDelivery{}.Apply(m, cfg)
}

// SetupInput encodes the configuration as JSON
func (BothDelivery) SetupInput(cfg types.MatrixConfiguration) ([]byte, error) {
	return JSONDelivery{}.SetupInput(cfg)
}

// KeyValues returns the string-typed configuration keys plugins query
func KeyValues(cfg types.MatrixConfiguration) map[string]string {
	return map[string]string{
		"width":             strconv.Itoa(cfg.Width),
		"height":            strconv.Itoa(cfg.Height),
		"target_fps":        strconv.FormatFloat(cfg.TargetFPS, 'f', -1, 64),
		"serpentine":        strconv.FormatBool(cfg.Serpentine),
		"vertical":          strconv.FormatBool(cfg.Vertical),
		"mirror_horizontal": strconv.FormatBool(cfg.MirrorHorizontal),
		"mirror_vertical":   strconv.FormatBool(cfg.MirrorVertical),
		"brightness":        strconv.Itoa(int(cfg.Brightness)),
	}
}
