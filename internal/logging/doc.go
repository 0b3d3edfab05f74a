// Package logging configures slog for vspfilter with a level per module.
//
// Initialize once at startup, then ask for a logger by module name:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"vsp": "debug"},
//	})
//	logger := logging.GetLogger("vsp")
//
// Every logger carries a module attribute. Loggers are cached and hold a
// *slog.LevelVar, so SetLevels changes them in place, including loggers
// handed out before Initialize:
//
//	logging.SetLevels("info", map[string]string{"vsp": "debug"})
//
// Records go to stdout when it is a terminal, pipe, socket or file, and to
// the systemd journal when journald is running. Journal entries are tagged
// vspfilter and carry attributes as upper case fields:
//
//	journalctl -t vspfilter MODULE=vsp -p warning
//
// The TOML form is
//
//	[logging]
//	level = "info"
//	format = "json"
//	[logging.modules]
//	vsp = "debug"
package logging
