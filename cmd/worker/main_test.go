package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"

	"nflpicks/engine/internal/config"
)

func TestSetupLogger(t *testing.T) {
	prevLevel, prevLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	setupLogger(&config.Config{AppEnv: "production", LogLevel: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogger(&config.Config{AppEnv: "production", LogLevel: "loud"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	setupLogger(&config.Config{AppEnv: "production"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
