package winevt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runreveal/winevt"
	"github.com/runreveal/winevt/winevttest"
)

func TestBookmarkEmpty(t *testing.T) {
	api := winevttest.New()
	bm, err := winevt.NewBookmark(api)
	require.NoError(t, err)

	xml, err := bm.Render()
	require.NoError(t, err)
	assert.Equal(t, "<BookmarkList>\r\n</BookmarkList>", xml)

	require.NoError(t, bm.Close())
	require.NoError(t, bm.Close())
	assert.Equal(t, 0, api.OpenHandles())

	_, err = bm.Render()
	assert.ErrorIs(t, err, winevt.ErrClosed)
	assert.ErrorIs(t, bm.Update(1), winevt.ErrClosed)
}

func TestBookmarkUpdateBatch(t *testing.T) {
	api := winevttest.New()
	seedChannel(api, "Application", 3)
	reg := winevt.NewRegistry(api)
	q := openQuery(t, api, reg, "Application")
	defer q.Release()

	b := winevt.NewBatch(10)
	out, err := winevt.NewCursor(reg, winevt.Infinite).FetchNext(q.Handle(), b)
	require.NoError(t, err)
	require.Equal(t, winevt.Ready, out)
	defer reg.ReleaseAll(b)

	bm, err := winevt.NewBookmark(api)
	require.NoError(t, err)
	defer bm.Close()
	require.NoError(t, bm.UpdateBatch(b))

	xml, err := bm.Render()
	require.NoError(t, err)
	assert.Equal(t, "<BookmarkList>\r\n  <Bookmark Channel='Application' RecordId='3' IsCurrent='true'/>\r\n</BookmarkList>", xml)

	again, err := bm.Render()
	require.NoError(t, err)
	assert.Equal(t, xml, again)
}

func TestBookmarkFromXML(t *testing.T) {
	api := winevttest.New()
	in := "<BookmarkList>\r\n  <Bookmark Channel='System' RecordId='42' IsCurrent='true'/>\r\n</BookmarkList>"

	bm, err := winevt.BookmarkFromXML(api, in)
	require.NoError(t, err)
	defer bm.Close()
	out, err := bm.Render()
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 1, bm.Registry().Live())

	_, err = winevt.BookmarkFromXML(api, "garbage")
	var oe *winevt.OsResourceError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "EvtCreateBookmark", oe.Op)
}

func TestBookmarkUpdateInvalidHandle(t *testing.T) {
	api := winevttest.New()
	bm, err := winevt.NewBookmark(api)
	require.NoError(t, err)
	defer bm.Close()

	var oe *winevt.OsResourceError
	require.ErrorAs(t, bm.Update(0xdead), &oe)
	assert.Equal(t, "EvtUpdateBookmark", oe.Op)
}
