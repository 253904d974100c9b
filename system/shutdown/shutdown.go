package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/env"
	"github.com/thatsimonsguy/pool-controller/internal/gpio"
)

var (
	mu     sync.Mutex
	relays []*gpio.Relay
	exit   = os.Exit
)

// Register sets the relays that are released on shutdown.
func Register(r []*gpio.Relay) {
	mu.Lock()
	defer mu.Unlock()
	relays = r
}

// Release drives every registered relay off unless safe mode is on.
func Release() {
	mu.Lock()
	defer mu.Unlock()

	on := energised()
	if env.Cfg != nil && env.Cfg.SafeMode {
		log.Warn().Strs("energised", on).Msg("Safe mode: leaving relays untouched on shutdown")
		return
	}
	if len(on) > 0 {
		log.Info().Strs("energised", on).Msg("Releasing energised relays")
	}
	if err := gpio.AllOff(relays); err != nil {
		log.Error().Err(err).Msg("Not every relay could be released")
		return
	}
	log.Info().Int("relays", len(relays)).Msg("All relays released")
}

func energised() []string {
	var ids []string
	for _, r := range relays {
		if r.Get() {
			ids = append(ids, string(r.ID))
		}
	}
	return ids
}

func Shutdown() {
	Release()
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Release()
	exit(1)
}
