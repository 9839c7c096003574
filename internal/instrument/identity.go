package instrument

import (
	"fmt"
	"strings"
)

// Identification holds the four comma-separated fields of a *IDN? reply.
type Identification struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
}

func (id Identification) String() string {
	return fmt.Sprintf("%s %s (sn %s, fw %s)", id.Manufacturer, id.Model, id.Serial, id.Firmware)
}

// ParseIdentification parses a raw *IDN? response.
func ParseIdentification(raw string) (Identification, error) {
	parts := strings.Split(strings.TrimRight(raw, "\r\n"), ",")
	if len(parts) != 4 {
		return Identification{}, fmt.Errorf("malformed *IDN? response %q: want 4 fields, got %d", raw, len(parts))
	}
	return Identification{
		Manufacturer: strings.TrimSpace(parts[0]),
		Model:        strings.TrimSpace(parts[1]),
		Serial:       strings.TrimSpace(parts[2]),
		Firmware:     strings.TrimSpace(parts[3]),
	}, nil
}

// MatchesModel reports whether the identified model is one of the
// descriptor's accepted models. An empty accepted list matches anything.
func (id Identification) MatchesModel(accepted []string) bool {
	if len(accepted) == 0 {
		return true
	}
	for _, m := range accepted {
		if strings.EqualFold(strings.TrimSpace(m), id.Model) {
			return true
		}
	}
	return false
}
