package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/target/cashier/internal/data/cryptoutil"
)

// CreateSealer builds the session state sealer from key. An empty key disables sealing and
// returns a nil Sealer.
//
//nolint:ireturn // nil Sealer means state is stored as exported.
func CreateSealer(key string, logger *slog.Logger) (cryptoutil.Sealer, error) {
	if key == "" {
		if logger != nil {
			logger.Warn("STATE_ENCRYPTION_KEY is empty, session state is stored unsealed")
		}
		return nil, nil
	}
	raw, err := cryptoutil.KeyFromString(key)
	if err != nil {
		return nil, err
	}
	sealer, err := cryptoutil.NewAESGCMSealer(raw)
	if err != nil {
		return nil, fmt.Errorf("create state sealer: %w", err)
	}
	return sealer, nil
}
