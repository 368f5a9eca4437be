package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"translator-agent/internal/crawl"
)

type fakeFetcher struct {
	page  *crawl.Page
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*crawl.Page, error) {
	f.calls++
	return f.page, f.err
}

func TestValidate(t *testing.T) {
	r := New(nil, "")
	tests := []struct {
		name string
		d    Descriptor
		want error
	}{
		{name: "text ok", d: Descriptor{Content: "hello", Kind: KindText}},
		{name: "blank", d: Descriptor{Content: "  ", Kind: KindText}, want: ErrEmpty},
		{name: "unknown kind", d: Descriptor{Content: "x", Kind: "pdf"}, want: ErrUnknownKind},
		{name: "text too long", d: Descriptor{Content: strings.Repeat("字", 10001), Kind: KindText}, want: ErrTooLong},
		{name: "url ok", d: Descriptor{Content: "https://example.com/a", Kind: KindURL}},
		{name: "url relative", d: Descriptor{Content: "/just/a/path", Kind: KindURL}, want: ErrInvalidURL},
		{name: "url ftp", d: Descriptor{Content: "ftp://example.com/f", Kind: KindURL}, want: ErrInvalidURL},
		{name: "file shape only", d: Descriptor{Content: "notes.pdf", Kind: KindFile}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.d)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolve_Text(t *testing.T) {
	out, err := New(nil, "").Resolve(context.Background(), Descriptor{Content: "hi", Kind: KindText})
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Text)
	assert.Nil(t, out.File)
	assert.Nil(t, out.URL)
}

func TestResolve_File(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.md"), []byte("# Title"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.exe"), []byte("MZ"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.txt"), 0o755))
	r := New(nil, root)
	ctx := context.Background()

	out, err := r.Resolve(ctx, Descriptor{Content: "doc.md", Kind: KindFile})
	require.NoError(t, err)
	assert.Equal(t, "# Title", out.Text)
	require.NotNil(t, out.File)
	assert.Equal(t, FileMeta{Name: "doc.md", Extension: ".md", SizeBytes: 7}, *out.File)

	_, err = r.Resolve(ctx, Descriptor{Content: filepath.Join(root, "bin.exe"), Kind: KindFile})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = r.Resolve(ctx, Descriptor{Content: "missing.txt", Kind: KindFile})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(ctx, Descriptor{Content: "dir.txt", Kind: KindFile})
	assert.ErrorIs(t, err, ErrRead)

	_, err = r.Resolve(ctx, Descriptor{Content: "../../etc/hosts.txt", Kind: KindFile})
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolve_FileTooLong(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(strings.Repeat("a", 50001)), 0o644))

	_, err := New(nil, root).Resolve(context.Background(), Descriptor{Content: "big.txt", Kind: KindFile})
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestResolve_URL(t *testing.T) {
	f := &fakeFetcher{page: &crawl.Page{URL: "https://a.test/x", Title: "X", HTML: "<p>x</p>", Markdown: "x"}}
	out, err := New(f, "").Resolve(context.Background(), Descriptor{Content: "https://a.test/x", Kind: KindURL})
	require.NoError(t, err)
	assert.Equal(t, "x", out.Text)
	assert.Equal(t, &URLMeta{URL: "https://a.test/x", Title: "X"}, out.URL)
}

func TestResolve_URLFallsBackToHTML(t *testing.T) {
	f := &fakeFetcher{page: &crawl.Page{Title: "X", HTML: "<p>x</p>"}}
	out, err := New(f, "").Resolve(context.Background(), Descriptor{Content: "http://a.test", Kind: KindURL})
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", out.Text)
	assert.Equal(t, "http://a.test", out.URL.URL)
}

func TestResolve_URLErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(&fakeFetcher{err: crawl.ErrTimeout}, "").Resolve(ctx, Descriptor{Content: "https://a.test", Kind: KindURL})
	assert.ErrorIs(t, err, ErrFetchTimeout)

	_, err = New(&fakeFetcher{err: errors.New("502")}, "").Resolve(ctx, Descriptor{Content: "https://a.test", Kind: KindURL})
	assert.ErrorIs(t, err, ErrFetchFailed)

	f := &fakeFetcher{}
	_, err = New(f, "").Resolve(ctx, Descriptor{Content: "not a url", Kind: KindURL})
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Zero(t, f.calls)
}

func TestAllowedExtension(t *testing.T) {
	assert.True(t, AllowedExtension("README.MD"))
	assert.True(t, AllowedExtension("a.yml"))
	assert.False(t, AllowedExtension("a.pdf"))
	assert.False(t, AllowedExtension("noext"))
}
