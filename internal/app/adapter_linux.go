package app

import "tinygo.org/x/bluetooth"

// bleAdapter selects a BlueZ adapter by name, e.g. "hci0".
func bleAdapter(name string) *bluetooth.Adapter {
	return bluetooth.NewAdapter(name)
}
