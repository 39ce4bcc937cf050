package team

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/pagination"
)

// File endpoints.
const (
	EndpointListFolder         = "files/list_folder"
	EndpointListFolderContinue = "files/list_folder/continue"
	EndpointDownload           = "files/download"
)

// FolderSource lists a member's folder recursively. An empty Path lists the
// member's root.
type FolderSource struct {
	API      API
	MemberID string
	Path     string
}

var _ pagination.Source[FolderEntry] = (*FolderSource)(nil)

// FetchFirst implements pagination.Source.
func (s *FolderSource) FetchFirst(ctx context.Context) (*pagination.Page[FolderEntry], error) {
	body := map[string]any{
		"path":               normalizePath(s.Path),
		"recursive":          true,
		"include_media_info": false,
	}
	var w wireFolderPage
	if err := s.API.Call(ctx, EndpointListFolder, body, &w, client.AsMember(s.MemberID)); err != nil {
		return nil, err
	}
	return w.page(EndpointListFolder)
}

// FetchNext implements pagination.Source.
func (s *FolderSource) FetchNext(ctx context.Context, cursor string) (*pagination.Page[FolderEntry], error) {
	var w wireFolderPage
	if err := s.API.Call(ctx, EndpointListFolderContinue, map[string]string{"cursor": cursor}, &w, client.AsMember(s.MemberID)); err != nil {
		return nil, err
	}
	return w.page(EndpointListFolderContinue)
}

// DumpRequest names a file to download on behalf of a member.
type DumpRequest struct {
	MemberID string
	// Email selects the local folder: the part before "@".
	Email string
	// Path is the provider path of the file, e.g. "/Reports/q1.pdf".
	Path string
	// FileName overrides the local file name; defaults to the base of Path.
	FileName string
}

// LocalPath returns where DumpFile writes the file under outDir:
// <outDir>/<email prefix>/<dir of Path>/<file name>.
func (r DumpRequest) LocalPath(outDir string) (string, error) {
	if r.Email == "" {
		return "", client.NewConfigError("dump: email is required")
	}
	clean := path.Clean("/" + r.Path)
	if clean == "/" {
		return "", client.NewConfigError("dump: file path is required")
	}

	name := r.FileName
	if name == "" {
		name = path.Base(clean)
	}
	if !safeSegment(name) {
		return "", client.NewConfigError("dump: invalid file name %q", name)
	}
	prefix := emailPrefix(r.Email)
	if !safeSegment(prefix) {
		return "", client.NewConfigError("dump: email %q does not name a folder", r.Email)
	}

	dir := strings.TrimPrefix(path.Dir(clean), "/")
	local := filepath.Join(outDir, prefix, filepath.FromSlash(dir), name)
	if rel, err := filepath.Rel(outDir, local); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", client.NewConfigError("dump: %q escapes the output folder", local)
	}
	return local, nil
}

// safeSegment reports whether s can be used as a single path element.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// DumpFile downloads one file into outDir and returns the local path and size.
func DumpFile(ctx context.Context, api API, req DumpRequest, outDir string) (string, int64, error) {
	local, err := req.LocalPath(outDir)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", 0, fmt.Errorf("create output folder: %w", err)
	}

	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("create output file: %w", err)
	}

	n, err := api.Download(ctx, EndpointDownload, map[string]string{"path": normalizePath(req.Path)}, f, client.AsMember(req.MemberID))
	closeErr := f.Close()
	if err != nil {
		os.Remove(tmp)
		return "", n, err
	}
	if closeErr != nil {
		os.Remove(tmp)
		return "", n, fmt.Errorf("close output file: %w", closeErr)
	}
	if err := os.Rename(tmp, local); err != nil {
		return "", n, fmt.Errorf("move output file: %w", err)
	}
	return local, n, nil
}

// normalizePath maps "/" and "" to the provider's root ("") and ensures a
// leading slash otherwise.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "id:") {
		p = "/" + p
	}
	return p
}
