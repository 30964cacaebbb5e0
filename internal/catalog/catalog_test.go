package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-hfsplus/hfsplus/internal/bitmap"
	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/extents"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

const testBlockSize = 512
const testNodeSize = 512

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	totalBlocks := uint32(4096)
	backing := blockio.NewMemoryBacking(int64(totalBlocks) * testBlockSize)
	cache := blockio.NewCache(backing, testBlockSize)

	bmpFork := types.ForkData{TotalBlocks: 1, Extents: types.ExtentRecord{{StartBlock: 0, BlockCount: 1}}}
	bmp := bitmap.New(cache, bmpFork, totalBlocks, testBlockSize)
	require.NoError(t, bmp.MarkUsed(0, 1))

	catFork := &types.ForkData{}
	handle := extents.New(cache, bmp, catFork, types.CNIDCatalogFile, 0, false, nil, totalBlocks)
	space := &extents.NodeSpace{Handle: handle, Size: testNodeSize}

	cat, err := New(space, testNodeSize, 0)
	require.NoError(t, err)

	root := types.CatalogFolder{}
	require.NoError(t, cat.tree.Insert(childKey(types.CNIDRootParent, "Test"), Record{Folder: &types.CatalogFolder{
		RecordType: types.RecTypeFolder,
		FolderID:   types.CNIDRootFolder,
		BSD:        root.BSD,
	}}))
	require.NoError(t, cat.tree.Insert(threadKey(types.CNIDRootFolder), Record{Thread: &types.CatalogThread{
		RecordType: types.RecTypeFolderThread,
		ParentID:   types.CNIDRootParent,
		NodeName:   childKey(types.CNIDRootParent, "Test").NodeName,
	}}))
	cat.nextID = types.CNIDFirstUserCatalogNodeID

	return cat
}

func TestCreateFolderAndLookup(t *testing.T) {
	cat := newTestCatalog(t)

	id, err := cat.CreateFolder(types.CNIDRootFolder, "Documents", types.CatalogFolder{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, uint32(id), uint32(types.CNIDFirstUserCatalogNodeID))

	rec, err := cat.Lookup(types.CNIDRootFolder, "Documents")
	require.NoError(t, err)
	require.True(t, rec.IsFolder())
	require.Equal(t, id, rec.Folder.FolderID)

	parent, name, err := cat.LookupByCNID(id)
	require.NoError(t, err)
	require.Equal(t, types.CNIDRootFolder, parent)
	require.Equal(t, "Documents", name)
}

func TestCreateFileDuplicateFails(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := cat.CreateFile(types.CNIDRootFolder, "a.txt", types.CatalogFile{})
	require.NoError(t, err)
	_, err = cat.CreateFile(types.CNIDRootFolder, "a.txt", types.CatalogFile{})
	require.Error(t, err)
}

func TestDeleteRefusesNonEmptyFolder(t *testing.T) {
	cat := newTestCatalog(t)
	folderID, err := cat.CreateFolder(types.CNIDRootFolder, "sub", types.CatalogFolder{})
	require.NoError(t, err)
	_, err = cat.CreateFile(folderID, "child.txt", types.CatalogFile{})
	require.NoError(t, err)

	err = cat.Delete(types.CNIDRootFolder, "sub")
	require.Error(t, err)

	require.NoError(t, cat.Delete(folderID, "child.txt"))
	require.NoError(t, cat.Delete(types.CNIDRootFolder, "sub"))
}

func TestRenameMovesAcrossFolders(t *testing.T) {
	cat := newTestCatalog(t)
	src, err := cat.CreateFolder(types.CNIDRootFolder, "src", types.CatalogFolder{})
	require.NoError(t, err)
	dst, err := cat.CreateFolder(types.CNIDRootFolder, "dst", types.CatalogFolder{})
	require.NoError(t, err)
	_, err = cat.CreateFile(src, "note.txt", types.CatalogFile{})
	require.NoError(t, err)

	require.NoError(t, cat.Rename(src, "note.txt", dst, "renamed.txt"))

	_, err = cat.Lookup(src, "note.txt")
	require.Error(t, err)
	rec, err := cat.Lookup(dst, "renamed.txt")
	require.NoError(t, err)
	require.True(t, rec.IsFile())
}

func TestGetDirentsPaginatesAndSkipsThread(t *testing.T) {
	cat := newTestCatalog(t)
	folderID, err := cat.CreateFolder(types.CNIDRootFolder, "listme", types.CatalogFolder{})
	require.NoError(t, err)
	names := []string{"a", "b", "c", "d", "e"}
	for _, n := range names {
		_, err := cat.CreateFile(folderID, n, types.CatalogFile{})
		require.NoError(t, err)
	}

	page1, eof1, err := cat.GetDirents(folderID, 0, 2)
	require.NoError(t, err)
	require.False(t, eof1)
	require.Len(t, page1, 2)

	page2, eof2, err := cat.GetDirents(folderID, 2, 2)
	require.NoError(t, err)
	require.False(t, eof2)
	require.Len(t, page2, 2)

	page3, eof3, err := cat.GetDirents(folderID, 4, 2)
	require.NoError(t, err)
	require.True(t, eof3)
	require.Len(t, page3, 1)

	seen := map[string]bool{}
	for _, e := range append(append(page1, page2...), page3...) {
		seen[e.Name] = true
	}
	for _, n := range names {
		require.True(t, seen[n], "missing %s", n)
	}
}

func TestHardLinkResolvesToInodeContent(t *testing.T) {
	cat := newTestCatalog(t)
	targetID, err := cat.CreateFile(types.CNIDRootFolder, "original.txt", types.CatalogFile{})
	require.NoError(t, err)

	linkID, err := cat.CreateHardLink(types.CNIDRootFolder, "linked.txt", targetID)
	require.NoError(t, err)
	require.NotEqual(t, targetID, linkID)

	linkRec, err := cat.Lookup(types.CNIDRootFolder, "linked.txt")
	require.NoError(t, err)
	require.True(t, linkRec.File.IsHardLink())

	resolved, err := cat.ResolveHardLink(*linkRec.File)
	require.NoError(t, err)
	require.False(t, resolved.IsHardLink())
}
