// Package relaycli is the command-line surface of the relay.
package relaycli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/PhaethonH/scxrelay/internal/scan"
	"github.com/PhaethonH/scxrelay/pkg/relay"
)

// Descriptors 3 and 4 may be pre-opened by a supervisor (a Steam
// launch wrapper, typically) that already holds the source device and
// the uinput node with elevated permissions.
const (
	inheritedSourceFd = 3
	inheritedUinputFd = 4
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "scxrelay"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type relayProvider func() (*relay.Relay, error)

func NewRootCmd(configDir string) *cobra.Command {
	cfg := relay.Config{
		UinputPath: relay.DefaultUinputPath,
		ConfigFile: filepath.Join(configDir, "relay.yml"),
		AutoScan:   true,
	}
	usbid := scan.DefaultUSBID.String()

	rootCmd := &cobra.Command{
		Use:   "scxrelay",
		Short: "Steam Controller event relay",
		Long: `scxrelay republishes the event stream of a Steam Controller's gamepad
device through a virtual xpad-compatible device, so games see a plain
gamepad instead of the controller's native identity.`,
	}
	relayProvider := func() (*relay.Relay, error) {
		return relay.New(cfg)
	}
	rootCmd.PersistentFlags().StringVar(&cfg.UinputPath, "uinput", cfg.UinputPath, "uinput device node")
	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "relay config file")
	rootCmd.PersistentFlags().StringVar(&usbid, "usbid", usbid, "source USB identity (vvvv:pppp)")
	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := scan.ParseUSBID(usbid)
		if err != nil {
			return err
		}
		cfg.USBID = id
		return nil
	}
	rootCmd.AddCommand(NewRun(relayProvider, &cfg))
	rootCmd.AddCommand(NewListDevices(relayProvider))
	rootCmd.AddCommand(NewShowCaps(relayProvider))
	return rootCmd
}

func NewRun(provider relayProvider, cfg *relay.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [source-device]",
		Short: "Run the relay",
		Long: `Run the relay until interrupted. The source device is taken from the
argument, from an inherited descriptor 3 (with the uinput node on
descriptor 4), or located by scanning for the configured USB identity.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.SourcePath = args[0]
			} else {
				cfg.SourceFile = inheritedFile(inheritedSourceFd, "inherited-source")
				if cfg.SourceFile != nil {
					cfg.UinputFile = inheritedFile(inheritedUinputFd, "inherited-uinput")
				}
			}
			r, err := provider()
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&cfg.AutoScan, "auto", cfg.AutoScan, "scan for the source device")
	cmd.Flags().BoolVar(&cfg.FilterHomeButton, "filter-home-button", false, "drop home button events")
	cmd.Flags().StringVar(&cfg.Identity.Name, "name", "", "advertised device name")
	return cmd
}

func NewListDevices(relay relayProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List input devices",
		Long:  `List the event devices visible to the scanner, with their USB identities.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := relay()
			if err != nil {
				return err
			}
			defer r.Close()
			devices, err := r.ListDevices()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}

func NewShowCaps(relay relayProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "show-caps <device>",
		Short: "Show device capabilities",
		Long:  `Dump the capability sets and axis calibration of one event device.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := relay()
			if err != nil {
				return err
			}
			defer r.Close()
			caps, err := r.DescribeDevice(args[0])
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(caps, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}

// inheritedFile adopts a descriptor left open by the parent process, if
// present. F_GETFD is the cheapest probe for a live descriptor.
func inheritedFile(fd int, name string) *os.File {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil
	}
	return os.NewFile(uintptr(fd), name)
}
