package protocol

import "github.com/dokzlo13/kl130d/internal/color"

// Service and method names used on the wire
const (
	LightingService      = "smartlife.iot.smartbulb.lightingservice"
	TransitionLightState = "transition_light_state"
	SystemService        = "system"
	GetSysinfo           = "get_sysinfo"
)

// Command is a request document sent to the bulb.
type Command map[string]any

// Response is a decoded reply document.
type Response map[string]any

// PowerCommand switches the bulb on or off without a transition.
func PowerCommand(on bool) Command {
	return lightState(map[string]any{
		"on_off": boolToInt(on),
	})
}

// ColorCommand switches the bulb on with the given HSB color.
// color_temp is zeroed so the bulb leaves white mode.
func ColorCommand(hsb color.HSB) Command {
	return lightState(map[string]any{
		"on_off":     1,
		"hue":        hsb.Hue,
		"saturation": hsb.Saturation,
		"brightness": hsb.Brightness,
		"color_temp": 0,
	})
}

// SysinfoQuery requests the bulb's system information, including light state.
func SysinfoQuery() Command {
	return Command{
		SystemService: map[string]any{
			GetSysinfo: map[string]any{},
		},
	}
}

func lightState(fields map[string]any) Command {
	fields["ignore_default"] = 1
	fields["transition_period"] = 0
	return Command{
		LightingService: map[string]any{
			TransitionLightState: fields,
		},
	}
}

// Power reports the on_off field of a get_sysinfo reply.
// ok is false when the reply carries no light state.
func (r Response) Power() (on bool, ok bool) {
	v, ok := r.lookup(SystemService, GetSysinfo, "light_state", "on_off")
	if !ok {
		return false, false
	}
	switch n := v.(type) {
	case float64:
		return n == 1, true
	case bool:
		return n, true
	}
	return false, false
}

// lookup walks nested objects along path.
func (r Response) lookup(path ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
