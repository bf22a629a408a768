package types

import (
	"bytes"
	"encoding/json"
)

// PluginUpdate is the object form of a plugin's update response
type PluginUpdate struct {
	State      FrameBuffer `json:"state"`
	Done       bool        `json:"done"`
	LogMessage LogMessages `json:"log_message"`
}

// LogMessages holds the optional log lines attached to an update.
// Older plugins send a single string, newer ones a list.
type LogMessages []string

// UnmarshalJSON accepts null, a string or an array of strings
func (l *LogMessages) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LogMessages{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}
