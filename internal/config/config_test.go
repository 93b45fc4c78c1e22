package config

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wspeirs/qcp/internal/transport"
)

func newTestCommand() (*cobra.Command, *viper.Viper) {
	cmd := &cobra.Command{Use: "qcp"}
	v := viper.New()
	BindFlags(cmd, v)
	return cmd, v
}

func TestFromCommandRequiresExactlyOneDirection(t *testing.T) {
	cmd, v := newTestCommand()
	if err := cmd.Flags().Parse([]string{"--host", "127.0.0.1"}); err != nil {
		t.Fatal(err)
	}

	_, err := FromCommand(cmd, v, []string{"payload.bin"})
	if err == nil {
		t.Fatal("expected error when neither --send nor --recv is given")
	}
	var te *transport.Error
	if !errors.As(err, &te) || te.Kind != transport.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestFromCommandRejectsBothDirections(t *testing.T) {
	cmd, v := newTestCommand()
	if err := cmd.Flags().Parse([]string{"--send", "--recv"}); err != nil {
		t.Fatal(err)
	}

	_, err := FromCommand(cmd, v, []string{"payload.bin"})
	if err == nil {
		t.Fatal("expected error when both --send and --recv are given")
	}
}

func TestFromCommandAppliesDefaults(t *testing.T) {
	cmd, v := newTestCommand()
	if err := cmd.Flags().Parse([]string{"--send"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromCommand(cmd, v, []string{"payload.bin"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != defaultHost || cfg.Port != defaultPort || cfg.WindowSize != defaultWindowSize {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromCommandRequiresExactlyOneFileArg(t *testing.T) {
	cmd, v := newTestCommand()
	if err := cmd.Flags().Parse([]string{"--send"}); err != nil {
		t.Fatal(err)
	}

	if _, err := FromCommand(cmd, v, nil); err == nil {
		t.Fatal("expected error with no file argument")
	}
	if _, err := FromCommand(cmd, v, []string{"a", "b"}); err == nil {
		t.Fatal("expected error with more than one file argument")
	}
}

func TestFromCommandRejectsTinyWindow(t *testing.T) {
	cmd, v := newTestCommand()
	if err := cmd.Flags().Parse([]string{"--send", "--window-size", "1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := FromCommand(cmd, v, []string{"payload.bin"}); err == nil {
		t.Fatal("expected error for window-size below 2")
	}
}
