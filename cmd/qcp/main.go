// Command qcp copies a file to or from a remote peer over the BBR
// transport: a reliable, ordered byte stream built directly on UDP.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wspeirs/qcp/internal/config"
	"github.com/wspeirs/qcp/internal/logging"
	"github.com/wspeirs/qcp/internal/netio"
	"github.com/wspeirs/qcp/internal/transport"
	"github.com/wspeirs/qcp/internal/wire"
)

const version = "1.0.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if te, ok := err.(*transport.Error); ok {
			logrus.WithField("kind", te.Kind.String()).Error(te.Error())
			os.Exit(exitCodeFor(te.Kind))
		}
		logrus.Error(err)
		os.Exit(1)
	}
}

func exitCodeFor(kind transport.Kind) int {
	switch kind {
	case transport.ConfigInvalid:
		return 2
	case transport.HandshakeTimeout, transport.HandshakeRejected:
		return 3
	case transport.ProtocolViolation:
		return 4
	default:
		return 1
	}
}

func run(argv []string) error {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "qcp [flags] FILE",
		Short:   "Quickly copy a file to or from a remote peer",
		Version: version,
		Args:    cobra.ExactArgs(1),
	}
	config.BindFlags(cmd, v)

	var runErr error
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromCommand(cmd, v, args)
		if err != nil {
			runErr = err
			return nil
		}
		runErr = execute(cfg)
		return nil
	}

	cmd.SetArgs(argv)
	if err := cmd.Execute(); err != nil {
		return err
	}
	return runErr
}

func execute(cfg *config.Config) error {
	log := logging.New(cfg.Verbosity)

	addr, err := cfg.Addr()
	if err != nil {
		return transport.NewConfigError(fmt.Sprintf("resolve address: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Send {
		return runSender(ctx, cfg, addr, log)
	}
	return runReceiver(ctx, cfg, addr, log)
}

func runSender(ctx context.Context, cfg *config.Config, remote *net.UDPAddr, log *logrus.Logger) error {
	sock, err := netio.DialUDP(remote)
	if err != nil {
		return err
	}

	sender, err := transport.Connect(sock, remote, cfg.WindowSize, logging.ForRole(log, "send"))
	if err != nil {
		_ = sock.Close()
		return err
	}
	defer sender.Close()
	defer sock.Close()

	file, err := os.Open(cfg.File)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, wire.MaxPayloadSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if werr := sender.WriteAll(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func runReceiver(ctx context.Context, cfg *config.Config, local *net.UDPAddr, log *logrus.Logger) error {
	sock, err := netio.ListenUDP(local)
	if err != nil {
		return err
	}

	receiver, err := transport.Listen(sock, cfg.WindowSize, logging.ForRole(log, "recv"))
	if err != nil {
		_ = sock.Close()
		return err
	}
	defer receiver.Close()
	defer sock.Close()

	file, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, wire.MaxPayloadSize)
	for {
		n, err := receiver.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := file.Write(buf[:n]); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
