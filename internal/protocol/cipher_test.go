package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/kl130d/internal/color"
)

func TestEncrypt_KnownVector(t *testing.T) {
	// '{' = 0x7b, 0x7b^0xab = 0xd0; '}' = 0x7d, 0x7d^0xd0 = 0xad
	assert.Equal(t, []byte{0xd0, 0xad}, Encrypt([]byte("{}")))
	assert.Equal(t, []byte("{}"), Decrypt([]byte{0xd0, 0xad}))
}

func TestEncrypt_Empty(t *testing.T) {
	assert.Empty(t, Encrypt(nil))
	assert.Empty(t, Decrypt(nil))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte(`{"system":{"get_sysinfo":{}}}`),
		{0x00, 0xff, 0xab, 0x55},
		[]byte("a"),
	}
	for _, in := range inputs {
		assert.Equal(t, in, Decrypt(Encrypt(in)))
	}
}

func TestEncode_Deterministic(t *testing.T) {
	cmd := ColorCommand(color.HSB{Hue: 120, Saturation: 50, Brightness: 75})

	a, err := Encode(cmd)
	require.NoError(t, err)
	b, err := Encode(cmd)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "power on", cmd: PowerCommand(true)},
		{name: "power off", cmd: PowerCommand(false)},
		{name: "color", cmd: ColorCommand(color.HSB{Hue: 240, Saturation: 100, Brightness: 100})},
		{name: "sysinfo", cmd: SysinfoQuery()},
		{
			name: "mixed scalars",
			cmd: Command{
				"s":    "text with \"quotes\" and ünïcode",
				"b":    true,
				"n":    nil,
				"f":    1.5,
				"list": []any{1, "two", false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)

			want, err := json.Marshal(tt.cmd)
			require.NoError(t, err)
			got, err := json.Marshal(decoded)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

func TestEncode_Unserializable(t *testing.T) {
	_, err := Encode(Command{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	valid, err := Encode(SysinfoQuery())
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)/2]},
		{name: "plain json", data: []byte(`{"system":{}}`)},
		{name: "garbage", data: []byte{0x01, 0x02, 0x03, 0x04}},
		{name: "array document", data: Encrypt([]byte(`[1,2,3]`))},
		{name: "null document", data: Encrypt([]byte(`null`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.Nil(t, resp)
		})
	}
}

func TestResponse_Power(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		wantOn bool
		wantOK bool
	}{
		{
			name:   "on",
			doc:    `{"system":{"get_sysinfo":{"light_state":{"on_off":1,"hue":0},"alias":"bulb"}}}`,
			wantOn: true,
			wantOK: true,
		},
		{
			name:   "off",
			doc:    `{"system":{"get_sysinfo":{"light_state":{"on_off":0}}}}`,
			wantOn: false,
			wantOK: true,
		},
		{name: "no light state", doc: `{"system":{"get_sysinfo":{"alias":"bulb"}}}`},
		{name: "no sysinfo", doc: `{"system":{}}`},
		{name: "error reply", doc: `{"system":{"get_sysinfo":{"err_code":-1}}}`},
		{name: "light state not an object", doc: `{"system":{"get_sysinfo":{"light_state":3}}}`},
		{name: "on_off wrong type", doc: `{"system":{"get_sysinfo":{"light_state":{"on_off":"yes"}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Decode(Encrypt([]byte(tt.doc)))
			require.NoError(t, err)

			on, ok := resp.Power()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOn, on)
		})
	}
}

func TestCommandShapes(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "power on",
			cmd:  PowerCommand(true),
			want: `{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"ignore_default":1,"transition_period":0,"on_off":1}}}`,
		},
		{
			name: "power off",
			cmd:  PowerCommand(false),
			want: `{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"ignore_default":1,"transition_period":0,"on_off":0}}}`,
		},
		{
			name: "color",
			cmd:  ColorCommand(color.HSB{Hue: 120, Saturation: 100, Brightness: 50}),
			want: `{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{"ignore_default":1,"transition_period":0,"on_off":1,"hue":120,"saturation":100,"brightness":50,"color_temp":0}}}`,
		},
		{
			name: "sysinfo",
			cmd:  SysinfoQuery(),
			want: `{"system":{"get_sysinfo":{}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.cmd)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
