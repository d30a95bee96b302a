package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/pkg/audio/portaudio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := portaudio.InputDevices()
			if err != nil {
				return fmt.Errorf("list input devices: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "no input devices found")
				return nil
			}
			for i, name := range names {
				fmt.Fprintf(out, "%2d  %s\n", i, name)
			}
			return nil
		},
	}
}
