package main

import (
	"github.com/spf13/cobra"
)

func newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount",
		Short: "Mount the capture volume",
		Long:  "Creates the mount point if needed and mounts paths.drive on paths.mount. Does nothing when already mounted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctrl := newMountController(cc, newRunner(cc))

			if err := ctrl.Mount(cmd.Context()); err != nil {
				return err
			}

			cc.Statusf("%s mounted on %s\n", ctrl.Drive(), ctrl.Point())

			return nil
		},
	}
}

func newUnmountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unmount",
		Short: "Unmount the capture volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctrl := newMountController(cc, newRunner(cc))

			if err := ctrl.Unmount(cmd.Context()); err != nil {
				return err
			}

			cc.Statusf("%s unmounted\n", ctrl.Point())

			return nil
		},
	}
}
