package core

// StopReason labels why the app or one of its components shut down; it
// shows up in the final log lines.
type StopReason string

const (
	StopUnknown       StopReason = "unknown"
	StopSIGINT        StopReason = "sigint"
	StopSIGTERM       StopReason = "sigterm"
	StopFatalError    StopReason = "fatal_error"
	StopAppStop       StopReason = "app_stop"
	StopPluginDisable StopReason = "plugin_disable"
	StopConfigReload  StopReason = "config_reload"
)
