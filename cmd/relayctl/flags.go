package main

import (
	"github.com/spf13/pflag"

	"github.com/dokzlo13/relayctl/internal/config"
)

// options holds the command-line flags.
type options struct {
	configPath string
	logLevel   string
	logFile    string
	status     bool

	hideInvert      bool
	hideTemperature bool
	hideBrightness  bool
	hideGamma       bool
	hideCaret       bool
	hideLabels      bool
	hideValue       bool
	neverFade       bool

	outerPadding int
	width        int
	height       int

	defaultTemperature float64
	defaultBrightness  float64
	defaultGamma       float64
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file (default: $XDG_CONFIG_HOME/relayctl/config.yaml if present)")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.logFile, "log-file", "", "Write logs to this file; logs are discarded otherwise")
	fs.BoolVar(&o.status, "status", false, "Serve /health, /ready, /state and /journal over HTTP")

	fs.BoolVarP(&o.hideInvert, "hide-invert", "i", false, "Hide the invert switch")
	fs.BoolVarP(&o.hideTemperature, "hide-temperature", "t", false, "Hide the temperature slider")
	fs.BoolVarP(&o.hideBrightness, "hide-brightness", "b", false, "Hide the brightness slider")
	fs.BoolVarP(&o.hideGamma, "hide-gamma", "g", false, "Hide the gamma slider")
	fs.BoolVarP(&o.hideCaret, "hide-caret", "c", false, "Hide the selection caret")
	fs.BoolVarP(&o.hideLabels, "hide-labels", "l", false, "Hide control labels")
	fs.BoolVarP(&o.hideValue, "hide-value", "v", false, "Hide current values")
	fs.BoolVarP(&o.neverFade, "never-fade", "f", false, "Keep the window visible until closed")

	fs.IntVarP(&o.outerPadding, "outer-padding", "p", 1, "Padding around the controls, in cells")
	fs.IntVarP(&o.width, "window-width", "x", 40, "Window width, in cells")
	fs.IntVarP(&o.height, "window-height", "y", 0, "Window height, in rows (0 = fit)")

	fs.Float64VarP(&o.defaultTemperature, "default-temperature", "T", 6500, "Temperature restored by right click, in Kelvin")
	fs.Float64VarP(&o.defaultBrightness, "default-brightness", "B", 1.0, "Brightness restored by right click")
	fs.Float64VarP(&o.defaultGamma, "default-gamma", "G", 1.0, "Gamma restored by right click")
}

// apply copies explicitly set flags onto cfg, so the command line wins over
// the configuration file.
func (o *options) apply(cfg *config.Config, fs *pflag.FlagSet) {
	changed := fs.Changed

	if changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if changed("status") {
		cfg.Status.Enabled = o.status
	}

	hide := []struct {
		flag  string
		value bool
		dst   *bool
	}{
		{"hide-invert", o.hideInvert, &cfg.Properties.Inverted.Hidden},
		{"hide-temperature", o.hideTemperature, &cfg.Properties.Temperature.Hidden},
		{"hide-brightness", o.hideBrightness, &cfg.Properties.Brightness.Hidden},
		{"hide-gamma", o.hideGamma, &cfg.Properties.Gamma.Hidden},
		{"hide-caret", o.hideCaret, &cfg.UI.HideCaret},
		{"hide-labels", o.hideLabels, &cfg.UI.HideLabels},
		{"hide-value", o.hideValue, &cfg.UI.HideValue},
	}
	for _, h := range hide {
		if changed(h.flag) {
			*h.dst = h.value
		}
	}

	if changed("never-fade") {
		enabled := !o.neverFade
		cfg.Fade.Enabled = &enabled
	}

	if changed("outer-padding") {
		cfg.UI.OuterPadding = o.outerPadding
	}
	if changed("window-width") {
		cfg.UI.Width = o.width
	}
	if changed("window-height") {
		cfg.UI.Height = o.height
	}

	defaults := []struct {
		flag  string
		value float64
		dst   **float64
	}{
		{"default-temperature", o.defaultTemperature, &cfg.Properties.Temperature.Default},
		{"default-brightness", o.defaultBrightness, &cfg.Properties.Brightness.Default},
		{"default-gamma", o.defaultGamma, &cfg.Properties.Gamma.Default},
	}
	for _, d := range defaults {
		if changed(d.flag) {
			v := d.value
			*d.dst = &v
		}
	}
}
