//go:build !tinygo

package broadcast

import (
	"fmt"
	"log/slog"
	"strings"
)

// rearm restarts a BlueZ advertisement. BlueZ keeps the advertisement
// registered across a disconnect and answers Start with AlreadyExists, which
// means the node is still discoverable.
func rearm(adv advertiser, logger *slog.Logger) error {
	err := adv.Start()
	if err == nil {
		return nil
	}
	if isAlreadyAdvertising(err) {
		logger.Debug("ble: advertising already active", "error", err)
		return nil
	}
	return fmt.Errorf("ble restart advertisement: %w", err)
}

func isAlreadyAdvertising(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already")
}
