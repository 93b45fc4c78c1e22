// Package config binds the program's command-line flags (send/recv
// direction, host, port, window size, file, verbosity) via cobra/viper,
// mirroring the mutually-exclusive direction group of the original tool's
// clap ArgGroup.
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wspeirs/qcp/internal/transport"
)

const (
	defaultHost       = "0.0.0.0"
	defaultPort       = 1234
	defaultWindowSize = 1024
)

// Config is the fully-validated set of options a run needs: which
// direction to operate in, the remote/bind address, the sliding window
// size, the file to read from or write to, and a verbosity count.
type Config struct {
	Send       bool
	Recv       bool
	Host       string
	Port       int
	WindowSize int
	File       string
	Verbosity  int
}

// Addr resolves Host/Port into a *net.UDPAddr.
func (c *Config) Addr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", c.Host, c.Port))
}

// BindFlags registers every flag this program accepts on cmd, and binds
// them into v so environment variables (QCP_HOST, QCP_PORT, ...) can
// override defaults ahead of flag parsing.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()

	flags.Bool("send", false, "send the file")
	flags.Bool("recv", false, "receive the file")
	flags.String("host", defaultHost, "host to connect to when sending, or bind to when receiving")
	flags.Int("port", defaultPort, "port to connect to when sending, or listen on when receiving")
	flags.IntP("window-size", "w", defaultWindowSize, "the size of the sliding window")
	flags.CountP("verbose", "v", "increase logging verbosity (repeatable)")

	v.SetEnvPrefix("qcp")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindPFlag("host", flags.Lookup("host"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("window-size", flags.Lookup("window-size"))
}

// FromCommand validates and assembles a Config from cmd's parsed flags and
// positional args[0] (the file path), returning a transport.Error of kind
// ConfigInvalid on any failure.
func FromCommand(cmd *cobra.Command, v *viper.Viper, args []string) (*Config, error) {
	flags := cmd.Flags()

	send, _ := flags.GetBool("send")
	recv, _ := flags.GetBool("recv")

	if send == recv {
		return nil, configErr("exactly one of --send or --recv is required")
	}

	if len(args) != 1 {
		return nil, configErr("expected exactly one file argument")
	}

	windowSize := v.GetInt("window-size")
	if windowSize < 2 {
		return nil, configErr(fmt.Sprintf("window-size must be at least 2, got %d", windowSize))
	}

	verbosity, _ := flags.GetCount("verbose")

	cfg := &Config{
		Send:       send,
		Recv:       recv,
		Host:       v.GetString("host"),
		Port:       v.GetInt("port"),
		WindowSize: windowSize,
		File:       args[0],
		Verbosity:  verbosity,
	}

	if _, err := cfg.Addr(); err != nil {
		return nil, configErr(fmt.Sprintf("invalid host/port: %v", err))
	}

	return cfg, nil
}

func configErr(msg string) error {
	return transport.NewConfigError(msg)
}
