package resources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

// fileRouter lays out <tmp>/secret.txt next to <tmp>/resource/notes.txt
func fileRouter(t *testing.T) (*Router, string) {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "resource")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(base, "docs", "guide.md"), []byte("# guide"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("top secret"), 0o600))

	sandbox, err := NewSandbox(base)
	require.NoError(t, err)

	r := NewRouter(nil)
	require.NoError(t, r.RegisterTemplate("local://file/{path}", FileHandler(sandbox, "path")))
	return r, root
}

func TestReadFile(t *testing.T) {
	r, _ := fileRouter(t)

	content, err := r.Read(context.Background(), "local://file/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content.Text)
	assert.Equal(t, "local://file/notes.txt", content.URI)

	again, err := r.Read(context.Background(), "local://file/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, content, again)

	nested, err := r.Read(context.Background(), "local://file/docs/guide.md")
	require.NoError(t, err)
	assert.Equal(t, "# guide", nested.Text)

	inner, err := r.Read(context.Background(), "local://file/docs/../notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", inner.Text)
}

func TestSandboxEscapes(t *testing.T) {
	r, root := fileRouter(t)

	uris := []string{
		"local://file/../secret.txt",
		"local://file/../../etc/passwd",
		"local://file/docs/../../secret.txt",
		"local://file/%2Fetc%2Fpasswd",
		"local://file/" + filepath.ToSlash(filepath.Join(root, "secret.txt")),
		"local://file/notes.txt%00",
	}
	for _, uri := range uris {
		t.Run(uri, func(t *testing.T) {
			_, err := r.Read(context.Background(), uri)
			require.Error(t, err)
			assert.True(t, customErrors.IsKind(err, customErrors.KindAccessDenied), "got %v", err)
			assert.Contains(t, err.Error(), "Access denied outside base directory.")
		})
	}
}

func TestSandboxSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	r, root := fileRouter(t)
	base := filepath.Join(root, "resource")
	require.NoError(t, os.Symlink(filepath.Join(root, "secret.txt"), filepath.Join(base, "link.txt")))
	require.NoError(t, os.Symlink(root, filepath.Join(base, "up")))

	for _, uri := range []string{"local://file/link.txt", "local://file/up/secret.txt", "local://file/up/missing.txt"} {
		_, err := r.Read(context.Background(), uri)
		assert.True(t, customErrors.IsKind(err, customErrors.KindAccessDenied), "%s: got %v", uri, err)
	}
}

func TestReadFileNotFound(t *testing.T) {
	r, _ := fileRouter(t)

	_, err := r.Read(context.Background(), "local://file/missing.txt")
	require.Error(t, err)
	assert.True(t, customErrors.IsKind(err, customErrors.KindNotFound))
	assert.Contains(t, err.Error(), "Not found: missing.txt")

	_, err = r.Read(context.Background(), "local://file/docs")
	assert.True(t, customErrors.IsKind(err, customErrors.KindNotFound))
}

func TestReadFileRejectsBinary(t *testing.T) {
	r, root := fileRouter(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "resource", "blob.bin"), []byte{0xff, 0xfe, 0x00}, 0o600))

	_, err := r.Read(context.Background(), "local://file/blob.bin")
	assert.True(t, customErrors.IsKind(err, customErrors.KindUpstream))
}

func TestNewSandboxCreatesBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "fresh", "resource")
	s, err := NewSandbox(base)
	require.NoError(t, err)

	info, err := os.Stat(s.Base())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFilesystemCausesStayLocal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("ENOTDIR wording differs on windows")
	}
	r, root := fileRouter(t)

	_, err := r.Read(context.Background(), "local://file/notes.txt/x")
	require.True(t, customErrors.IsKind(err, customErrors.KindNotFound), "got %v", err)
	assert.Equal(t, "[resource:not_found] Not found: x", err.Error())
	assert.NotContains(t, err.Error(), "not a directory")
	assert.NotContains(t, err.Error(), root)
	assert.Nil(t, errors.Unwrap(err))
}
