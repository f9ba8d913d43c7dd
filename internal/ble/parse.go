package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"

	"airsense/internal/broadcast"
	"airsense/internal/codec"
)

// ChannelForUUID maps a notify characteristic back to the channel it carries.
func ChannelForUUID(id bluetooth.UUID) (codec.Channel, bool) {
	for _, ch := range codec.Channels {
		if u, ok := broadcast.CharacteristicUUID(ch); ok && u == id {
			return ch, true
		}
	}
	return 0, false
}

// ParseNotification decodes a 2-byte channel payload into its physical value:
// ppm for CO2, °C, %RH, or the raw index for VOC and NOx.
func ParseNotification(ch codec.Channel, payload []byte) (float32, error) {
	switch ch {
	case codec.CO2:
		v, err := codec.DecodeCO2(payload)
		return float32(v), err
	case codec.Temperature:
		return codec.DecodeTemperature(payload)
	case codec.Humidity:
		return codec.DecodeHumidity(payload)
	case codec.VOC, codec.NOx:
		v, err := codec.DecodeIndex(payload)
		return float32(v), err
	default:
		return 0, fmt.Errorf("unknown channel %s", ch)
	}
}
