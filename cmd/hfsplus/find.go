package main

import (
	"fmt"
	"path"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/types"
	"github.com/go-hfsplus/hfsplus/internal/volume"
)

const findPageSize = 256

var findCmd = &cobra.Command{
	Use:   "find <image> <pattern>",
	Short: "Recursively search the volume for names matching a doublestar glob",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := volume.Mount(args[0], volume.MountOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer v.Unmount()

		pattern := args[1]
		return walk(v, types.CNID(types.CNIDRootFolder), "", pattern)
	},
}

func walk(v *volume.Volume, folderID types.CNID, prefix string, pattern string) error {
	offset := 0
	for {
		entries, eof, err := v.Catalog.GetDirents(folderID, offset, findPageSize)
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := path.Join(prefix, e.Name)
			matched, err := doublestar.Match(pattern, full)
			if err != nil {
				return err
			}
			if matched {
				fmt.Println(full)
			}
			if e.Record.IsFolder() {
				if err := walk(v, e.Record.Folder.FolderID, full, pattern); err != nil {
					return err
				}
			}
		}
		offset += len(entries)
		if eof {
			break
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(findCmd)
}
