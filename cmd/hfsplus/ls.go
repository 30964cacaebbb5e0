package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/volume"
)

const lsPageSize = 256

var lsCmd = &cobra.Command{
	Use:   "ls <image> <path>",
	Short: "List a directory's entries",
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
		if !rec.IsFolder() {
			return hfserrors.Newf(hfserrors.ErrNotDirectory, "%s is not a directory", args[1])
		}

		offset := 0
		for {
			entries, eof, err := v.Catalog.GetDirents(id, offset, lsPageSize)
			if err != nil {
				return err
			}
			for _, e := range entries {
				kind := "file"
				switch {
				case e.Record.IsFolder():
					kind = "dir"
				case e.Record.IsFile() && e.Record.File.IsHardLink():
					kind = "hlnk"
				}
				fmt.Printf("%-6s %8d  %s\n", kind, uint32(e.CNID), e.Name)
			}
			offset += len(entries)
			if eof {
				break
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
