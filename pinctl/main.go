// Package main vends pinctl, a command line tool to inspect and add pins directly in the data directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"community.io/pinboard/common/logging"
	"community.io/pinboard/config"
	st "community.io/pinboard/stores"
)

// app holds what commands operate on. Commands load it lazily so that --help works without a data directory
type app struct {
	Cfg  *config.Config
	Pins st.PinStore
}

func (a *app) load() error {
	if a.Pins != nil {
		return nil
	}
	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(viper.New())
	if err != nil {
		return err
	}
	logging.SetupLog("pinctl", cfg.Verbose)
	pins, err := cfg.NewPinStore()
	if err != nil {
		return err
	}
	a.Cfg, a.Pins = cfg, pins
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pinctl",
		Short:         "Inspect and add pins in the pinboard data directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.AddCommand(newListCmd(a), newShowCmd(a), newAddCmd(a))
	return root
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
