package symbol

import "strings"

// GateConverter maps internal keys to Gate futures contract names. Both use
// BASE_QUOTE so the conversion is mostly normalisation.
type GateConverter struct{}

func (GateConverter) ToExchange(internal string) string {
	return Parse(internal).Internal()
}

func (GateConverter) FromExchange(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	return Parse(s).Internal()
}

func (GateConverter) Format() Format {
	return FormatGate
}

var Gate = GateConverter{}
