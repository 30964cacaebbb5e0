package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/volume"
)

var (
	mountReadOnly bool
	mountWrapper  bool
	mountEncoding int
)

var mountCmd = &cobra.Command{
	Use:   "mount <image>",
	Short: "Mount an HFS+ image and print its volume header summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := volume.MountOptions{
			ReadOnly:     mountReadOnly,
			ForceWrapper: mountWrapper,
			HFSEncoding:  mountEncoding,
		}
		v, err := volume.Mount(args[0], opts)
		if err != nil {
			return err
		}
		defer v.Unmount()

		h := v.Header()
		free, err := v.Bitmap.CountFree()
		if err != nil {
			return err
		}
		fmt.Printf("volume UUID:      %s\n", v.UUID())
		fmt.Printf("block size:       %d\n", h.BlockSize)
		fmt.Printf("total blocks:     %d\n", h.TotalBlocks)
		fmt.Printf("free blocks:      %d (bitmap recount: %d)\n", h.FreeBlocks, free)
		fmt.Printf("file count:       %d\n", h.FileCount)
		fmt.Printf("folder count:     %d\n", h.FolderCount)
		fmt.Printf("damaged:          %v\n", h.IsDamaged())
		fmt.Printf("cleanly unmounted: %v\n", h.IsCleanlyUnmounted())
		fmt.Printf("journaled:        %v\n", h.IsJournaled())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().BoolVar(&mountReadOnly, "ro", true, "mount read-only")
	mountCmd.Flags().BoolVar(&mountWrapper, "wrapper", false, "force HFS-standard wrapper detection")
	mountCmd.Flags().IntVar(&mountEncoding, "hfs-encoding", 0, "preferred legacy text encoding id")
}
