//go:build !linux

package app

import "tinygo.org/x/bluetooth"

// bleAdapter ignores name outside Linux: the OS exposes a single adapter.
func bleAdapter(string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
