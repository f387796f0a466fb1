package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/capture"
)

func newDevicesCmd() *cobra.Command {
	var sysfsRoot string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List video input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := capture.SysfsLister{Root: sysfsRoot}.VideoInputs()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "no video input devices found")
				return nil
			}

			rear, _ := capture.SelectDevice(devices, capture.FacingEnvironment)
			front, _ := capture.SelectDevice(devices, capture.FacingUser)
			for _, d := range devices {
				var marks string
				if d.ID == rear.ID {
					marks += " [environment]"
				}
				if d.ID == front.ID {
					marks += " [user]"
				}
				label := d.Label
				if label == "" {
					label = "(unnamed)"
				}
				fmt.Fprintf(out, "%-14s %s%s\n", d.ID, label, marks)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sysfsRoot, "sysfs-root", capture.DefaultSysfsRoot, "V4L2 sysfs directory")
	cmd.Flags().MarkHidden("sysfs-root")
	return cmd
}
