package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/types"
	"github.com/go-hfsplus/hfsplus/internal/volume"
)

var statCmd = &cobra.Command{
	Use:   "stat <image> <path>",
	Short: "Print a path's catalog attributes, fork sizes, and extent layout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := volume.Mount(args[0], volume.MountOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer v.Unmount()

		id, rec, err := v.Resolve(args[1])
		if err != nil {
			return err
		}

		fmt.Printf("path:  %s\n", args[1])
		fmt.Printf("cnid:  %d\n", uint32(id))
		switch {
		case rec.IsFolder():
			f := rec.Folder
			fmt.Printf("type:  folder\n")
			fmt.Printf("valence: %d\n", f.Valence)
			fmt.Printf("mode:    %o\n", f.BSD.FileMode)
		case rec.IsFile():
			f := rec.File
			fmt.Printf("type:  file%s\n", hardLinkSuffix(f.IsHardLink()))
			fmt.Printf("mode:    %o\n", f.BSD.FileMode)
			printFork(v, "data", f, false)
			printFork(v, "rsrc", f, true)
		}
		return nil
	},
}

func hardLinkSuffix(isLink bool) string {
	if isLink {
		return " (hard link)"
	}
	return ""
}

func printFork(v *volume.Volume, label string, f *types.CatalogFile, resource bool) {
	r := v.OpenFork(f, resource)
	size := r.Size()
	fmt.Printf("%s fork: %d bytes\n", label, size)
	if size == 0 {
		return
	}

	blockSize := int64(r.BlockSize())
	totalLogicalBlocks := uint32((size + blockSize - 1) / blockSize)

	var runStart, runLen uint32
	haveRun := false
	flush := func() {
		if haveRun {
			fmt.Printf("  extent: block %d, len %d\n", runStart, runLen)
		}
	}
	lb := uint32(0)
	for lb < totalLogicalBlocks {
		start, contig, hole, err := r.MapBlock(lb)
		if err != nil {
			fmt.Printf("  extent lookup failed at block %d: %v\n", lb, err)
			return
		}
		if contig == 0 {
			contig = 1
		}
		if hole {
			flush()
			haveRun = false
		} else if haveRun && start == runStart+runLen {
			runLen += contig
		} else {
			flush()
			runStart, runLen, haveRun = start, contig, true
		}
		lb += contig
	}
	flush()
}

func init() {
	rootCmd.AddCommand(statCmd)
}
