package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rtparts/catalogd/internal/archive/memory"
)

func TestArchivePageStoresContent(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	a := New(store, "pages", zaptest.NewLogger(t))

	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	a.ArchivePage(context.Background(), "https://parts.example.com/gaz/fm-3110", []byte("<html>body</html>"), at)

	require.Equal(t, 1, store.Len())
}

func TestArchivePageNilStoreIsNoop(t *testing.T) {
	t.Parallel()

	a := New(nil, "pages", zaptest.NewLogger(t))
	a.ArchivePage(context.Background(), "https://x/p", []byte("x"), time.Now())
}

func TestSlugFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "path", url: "https://x.example/gaz/fm_3110", want: "gaz-fm-3110"},
		{name: "root", url: "https://x.example/", want: "x-example"},
		{name: "garbage", url: "://", want: "page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, slugFromURL(tt.url))
		})
	}
}
