// Package utils holds small formatting helpers shared by the sensor driver
// and the controller's debug logs.
package utils

const hexDigits = "0123456789ABCDEF"

// Hex4 formats an SCD4x command or register word as four upper-case hex
// digits, e.g. 0x21B1 -> "21B1".
func Hex4(v uint16) string {
	return string([]byte{
		hexDigits[v>>12&0xF],
		hexDigits[v>>8&0xF],
		hexDigits[v>>4&0xF],
		hexDigits[v&0xF],
	})
}

// BytesToHex renders a characteristic payload as contiguous hex, e.g.
// [0x9C 0x01] -> "9C01".
func BytesToHex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, x := range b {
		out[2*i] = hexDigits[x>>4]
		out[2*i+1] = hexDigits[x&0xF]
	}
	return string(out)
}
