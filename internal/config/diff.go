package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level and the sticker chance are applied without restart;
// other changed sections are listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StickerChanceChanged bool
	NewStickerChance     float64

	// RestartRequired names the top-level sections that changed in ways
	// that only take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.StickerChanceChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Stickers.Chance != new.Stickers.Chance {
		d.StickerChanceChanged = true
		d.NewStickerChance = new.Stickers.Chance
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldStickers, newStickers := old.Stickers, new.Stickers
	oldStickers.Chance, newStickers.Chance = 0, 0

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"discord", old.Discord, new.Discord},
		{"persona", old.Persona, new.Persona},
		{"providers", old.Providers, new.Providers},
		{"store", old.Store, new.Store},
		{"stickers", oldStickers, newStickers},
		{"ratelimit", old.RateLimit, new.RateLimit},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
