// Package config holds the root command line of usbforge.
package config

import (
	"github.com/Alia5/usbforge/internal/cmd"
	"github.com/Alia5/usbforge/internal/log"
)

// CLI is parsed by Kong. Flags and environment variables override values
// loaded from configuration files.
type CLI struct {
	Log    log.Config `embed:"" prefix:"log."`
	Config string     `help:"Configuration file (JSON, YAML or TOML)" type:"path" env:"USBFORGE_CONFIG"`

	Serve     cmd.Serve         `cmd:"" help:"Export the demo devices over USB-IP"`
	Ls        cmd.Ls            `cmd:"" help:"List the demo devices"`
	Dump      cmd.Dump          `cmd:"" help:"Dump one descriptor of a demo device"`
	Proxy     cmd.Proxy         `cmd:"" help:"Forward USB-IP clients to a server and log the traffic"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration file helpers"`
}
