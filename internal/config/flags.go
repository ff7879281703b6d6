package config

import (
	"github.com/spf13/pflag"
)

// BindFlags registers command-line overrides on fs. Defaults are the values already in cfg,
// so flags win over the environment only when given.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.CDPPort, "cdp-port", cfg.CDPPort, "Chromium remote debugging port")
	fs.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "query API listen address")
	fs.StringVar(&cfg.TabURLFilter, "tab-filter", cfg.TabURLFilter, "attach only to tabs whose URL contains this substring")
	fs.BoolVar(&cfg.LaunchBrowser, "launch", cfg.LaunchBrowser, "launch a browser instead of attaching to a running one")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run a launched browser headless")
	fs.StringVar(&cfg.StartURL, "start-url", cfg.StartURL, "URL to open in a launched browser")
	fs.StringVar(&cfg.ProxyAddr, "proxy", cfg.ProxyAddr, "forward proxy listen address (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
}
