// Command zbc inspects and manages zoned block devices: zone reporting,
// explicit zone operations, sector-addressed data I/O and emulated device
// provisioning.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vijayvenkateshjana/libzbc/internal/config"
	"github.com/vijayvenkateshjana/libzbc/internal/geometry"
	"github.com/vijayvenkateshjana/libzbc/internal/metrics"
	"github.com/vijayvenkateshjana/libzbc/pkg/types"
	"github.com/vijayvenkateshjana/libzbc/pkg/zbc"
)

var (
	cfg = config.NewDefault()

	flagConfig   string
	flagLogLevel string
	flagBackend  string
	flagTestMode bool
	flagReadOnly bool
)

func main() {
	root := &cobra.Command{
		Use:           "zbc",
		Short:         "Zoned block device management",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setup()
		},
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "configuration file")
	root.PersistentFlags().StringVarP(&flagLogLevel, "log-level", "l", "", "log level (none, warning, error, info, debug)")
	root.PersistentFlags().StringVarP(&flagBackend, "backend", "b", "", "force backend (block, ata, scsi, emulated)")
	root.PersistentFlags().BoolVar(&flagTestMode, "test-mode", false, "relax request validation (conformance testing)")
	root.PersistentFlags().BoolVar(&flagReadOnly, "read-only", false, "open devices read-only")

	root.AddCommand(
		infoCmd(),
		reportCmd(),
		zoneOpCmd("open", "Explicitly open a zone", types.ZoneOpOpen),
		zoneOpCmd("close", "Close an open zone", types.ZoneOpClose),
		zoneOpCmd("finish", "Transition a zone to full", types.ZoneOpFinish),
		zoneOpCmd("reset", "Reset a zone write pointer", types.ZoneOpReset),
		readCmd(),
		writeCmd(),
		setZonesCmd(),
		setWPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup merges the configuration sources in ascending priority: defaults,
// file, environment, command-line flags.
func setup() error {
	if flagConfig != "" {
		if err := cfg.LoadFromFile(flagConfig); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if flagLogLevel != "" {
		cfg.Global.LogLevel = flagLogLevel
	}
	if flagBackend != "" {
		cfg.Device.Backend = flagBackend
	}
	if flagTestMode {
		cfg.Device.TestMode = true
	}
	if flagReadOnly {
		cfg.Device.ReadOnly = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := zbc.ParseLogLevel(cfg.Global.LogLevel)
	if err != nil {
		return err
	}
	zbc.SetLogLevel(level)
	return nil
}

func openDevice(path string) (*zbc.Device, *metrics.Collector, error) {
	collector, err := metrics.NewCollector(&cfg.Metrics)
	if err != nil {
		return nil, nil, err
	}
	if collector.Enabled() {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		go func() {
			defer stop()
			collector.Start(ctx)
		}()
	}

	kind, err := types.ParseBackendKind(cfg.Device.Backend)
	if err != nil {
		return nil, nil, err
	}
	dev, err := zbc.Open(path, zbc.Options{
		Flags:                cfg.OpenFlags(),
		Backend:              kind,
		EmuLogicalBlockSize:  cfg.Emulation.LogicalBlockSize,
		EmuPhysicalBlockSize: cfg.Emulation.PhysicalBlockSize,
		Metrics:              collector,
	})
	if err != nil {
		collector.Stop()
		return nil, nil, err
	}
	return dev, collector, nil
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <device>",
		Short: "Show device model and geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()

			info := dev.Info()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Path:\t%s\n", dev.Path())
			fmt.Fprintf(w, "Backend:\t%s\n", dev.Kind())
			fmt.Fprintf(w, "Model:\t%s\n", info.Model)
			if info.Vendor != "" {
				fmt.Fprintf(w, "Vendor:\t%s\n", info.Vendor)
			}
			fmt.Fprintf(w, "Logical block size:\t%d B\n", info.LogicalBlockSize)
			fmt.Fprintf(w, "Physical block size:\t%d B\n", info.PhysicalBlockSize)
			fmt.Fprintf(w, "Capacity:\t%d sectors (%d B)\n",
				info.TotalSectors, geometry.SectorsToBytes(info.TotalSectors))
			if info.ZoneSectors != 0 {
				fmt.Fprintf(w, "Zone size:\t%d sectors\n", info.ZoneSectors)
			}
			return w.Flush()
		},
	}
}

func reportCmd() *cobra.Command {
	var (
		startSector uint64
		limit       int
		filter      uint8
	)
	cmd := &cobra.Command{
		Use:   "report <device>",
		Short: "List zones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()

			zones, err := dev.ReportZones(startSector, types.ReportingOptions(filter), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "START\tLENGTH\tWP\tTYPE\tCONDITION\tFLAGS")
			for _, z := range zones {
				flags := ""
				if z.ResetRecommended {
					flags += "R"
				}
				if z.NonSeq {
					flags += "N"
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
					z.Start, z.Length, z.WritePointer, z.Type, z.Condition, flags)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Uint64VarP(&startSector, "start", "s", 0, "first sector to report from")
	cmd.Flags().IntVarP(&limit, "num", "n", 0, "maximum zones to report (0 = default)")
	cmd.Flags().Uint8VarP(&filter, "filter", "f", 0, "reporting option value")
	return cmd
}

func zoneOpCmd(name, short string, op types.ZoneOp) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   name + " <device> [zone-start-sector]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var startSector uint64
			if !all {
				if len(args) != 2 {
					return fmt.Errorf("zone start sector required unless --all is set")
				}
				if _, err := fmt.Sscanf(args[1], "%d", &startSector); err != nil {
					return fmt.Errorf("invalid zone start sector %q", args[1])
				}
			}
			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()
			return dev.ZoneOp(startSector, op, all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "operate on all applicable zones")
	return cmd
}

func readCmd() *cobra.Command {
	var (
		sector  uint64
		count   uint64
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "read <device>",
		Short: "Read sectors to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()

			var out io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			buf := make([]byte, geometry.SectorsToBytes(count))
			n, err := dev.ReadAt(buf, int64(geometry.SectorsToBytes(sector)))
			if err != nil {
				return err
			}
			_, err = out.Write(buf[:n])
			return err
		},
	}
	cmd.Flags().Uint64VarP(&sector, "sector", "s", 0, "first sector to read")
	cmd.Flags().Uint64VarP(&count, "count", "n", 1, "number of sectors to read")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	return cmd
}

func writeCmd() *cobra.Command {
	var (
		sector uint64
		inFile string
	)
	cmd := &cobra.Command{
		Use:   "write <device>",
		Short: "Write sectors from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if inFile != "" {
				f, err := os.Open(inFile)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()

			_, err = dev.WriteAt(data, int64(geometry.SectorsToBytes(sector)))
			return err
		},
	}
	cmd.Flags().Uint64VarP(&sector, "sector", "s", 0, "first sector to write")
	cmd.Flags().StringVarP(&inFile, "input", "i", "", "input file (default stdin)")
	return cmd
}

func setZonesCmd() *cobra.Command {
	var convSectors, zoneSectors uint64
	cmd := &cobra.Command{
		Use:   "setzones <device>",
		Short: "Reconfigure the zone layout of an emulated device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()
			return dev.SetZones(convSectors, zoneSectors)
		},
	}
	cmd.Flags().Uint64Var(&convSectors, "conv", 0, "conventional space in sectors")
	cmd.Flags().Uint64VarP(&zoneSectors, "zone-size", "z", 0, "zone size in sectors")
	cmd.MarkFlagRequired("zone-size")
	return cmd
}

func setWPCmd() *cobra.Command {
	var startSector, wp uint64
	cmd := &cobra.Command{
		Use:   "setwp <device>",
		Short: "Move a zone write pointer on an emulated device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, collector, err := openDevice(args[0])
			if err != nil {
				return err
			}
			defer collector.Stop()
			defer dev.Close()
			return dev.SetWritePointer(startSector, wp)
		},
	}
	cmd.Flags().Uint64VarP(&startSector, "zone", "z", 0, "zone start sector")
	cmd.Flags().Uint64VarP(&wp, "wp", "w", 0, "new write pointer sector")
	cmd.MarkFlagRequired("zone")
	cmd.MarkFlagRequired("wp")
	return cmd
}
