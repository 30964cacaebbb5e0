package volume

import (
	"strings"

	"github.com/go-hfsplus/hfsplus/internal/catalog"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// Resolve walks a slash-separated path from the volume root and returns the
// catalog record it names, resolving hard links along the way (spec.md
// §4.H "path lookup", equivalent to hfs_vnops.c's lookup/cache_lookup walk).
func (v *Volume) Resolve(path string) (types.CNID, catalog.Record, error) {
	path = strings.Trim(path, "/")
	id := types.CNID(types.CNIDRootFolder)
	rec := catalog.Record{Folder: &types.CatalogFolder{FolderID: id}}
	if path == "" {
		return id, rec, nil
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		next, err := v.Catalog.Lookup(id, seg)
		if err != nil {
			return 0, catalog.Record{}, hfserrors.Wrap(hfserrors.ErrNotFound, err, "resolve path segment "+seg)
		}
		if next.IsFile() && next.File.IsHardLink() {
			resolved, err := v.Catalog.ResolveHardLink(*next.File)
			if err != nil {
				return 0, catalog.Record{}, err
			}
			next.File = &resolved
		}
		rec = next
		if rec.IsFolder() {
			id = rec.Folder.FolderID
		} else if rec.IsFile() {
			id = rec.File.FileID
		}
		if !rec.IsFolder() && i != len(segments)-1 {
			return 0, catalog.Record{}, hfserrors.Newf(hfserrors.ErrNotDirectory, "%s is not a directory", seg)
		}
	}
	return id, rec, nil
}

// OpenFork returns a ForkHandle for a file's data or resource fork, wired
// through the same bitmap/overflow machinery every other system file uses.
func (v *Volume) OpenFork(file *types.CatalogFile, resource bool) *forkReader {
	fork := &file.DataFork
	forkType := types.ForkTypeData
	if resource {
		fork = &file.ResourceFork
		forkType = types.ForkTypeResource
	}
	return &forkReader{v: v, fork: fork, fileID: file.FileID, forkType: forkType}
}
