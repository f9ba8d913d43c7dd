//go:build tinygo

package broadcast

import "log/slog"

// rearm re-enables advertising on the HCI stack. The stack turns advertising
// back on by itself after a disconnect, so a refused enable is not a fault.
func rearm(adv advertiser, logger *slog.Logger) error {
	if err := adv.Start(); err != nil {
		logger.Debug("ble: advertising already active", "error", err)
	}
	return nil
}
