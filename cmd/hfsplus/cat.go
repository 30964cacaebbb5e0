package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/volume"
)

var catResource bool

var catCmd = &cobra.Command{
	Use:   "cat <image> <path>",
	Short: "Stream a file's data (or resource) fork to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := volume.Mount(args[0], volume.MountOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer v.Unmount()

		_, rec, err := v.Resolve(args[1])
		if err != nil {
			return err
		}
		if !rec.IsFile() {
			return hfserrors.Newf(hfserrors.ErrNotDirectory, "%s is not a file", args[1])
		}

		r := v.OpenFork(rec.File, catResource)
		buf := make([]byte, 64*1024)
		var off int64
		size := r.Size()
		for off < size {
			n, err := r.ReadAt(buf, off)
			if n > 0 {
				if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
					return werr
				}
				off += int64(n)
			}
			if err != nil {
				if err == io.EOF {
					break
				}
				return err
			}
			if n == 0 {
				break
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().BoolVar(&catResource, "resource", false, "dump the resource fork instead of the data fork")
}
