package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/volume"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck-summary <image>",
	Short: "Report volume health flags without attempting repair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := volume.Mount(args[0], volume.MountOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer v.Unmount()

		h := v.Header()
		free, err := v.Bitmap.CountFree()
		if err != nil {
			return err
		}

		fmt.Printf("damaged:            %v\n", h.IsDamaged())
		fmt.Printf("cleanly unmounted:  %v\n", h.IsCleanlyUnmounted())
		fmt.Printf("journaled:          %v\n", h.IsJournaled())
		fmt.Printf("header free blocks: %d\n", h.FreeBlocks)
		fmt.Printf("bitmap free blocks: %d\n", free)
		if free != h.FreeBlocks {
			fmt.Printf("MISMATCH: header/bitmap free block counts disagree by %d\n", diff(free, h.FreeBlocks))
		} else {
			fmt.Println("bitmap consistency: OK")
		}
		fmt.Println("no repair performed; this command only reports")
		return nil
	},
}

func diff(a, b uint32) int64 {
	if a > b {
		return int64(a - b)
	}
	return int64(b - a)
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}
