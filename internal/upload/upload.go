// Package upload places a local dataset into the remote training layout.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/acolita/train-wizard/internal/adapters/realfs"
	"github.com/acolita/train-wizard/internal/ports"
	"github.com/acolita/train-wizard/internal/session"
)

// DefaultBaseDir is the remote directory that holds the per-task trees.
const DefaultBaseDir = "/home/HwHiAiUser/Desktop/2t"

// ErrorKind categorizes an upload failure.
type ErrorKind int

const (
	NotReady ErrorKind = iota
	DirectoryCreateFailed
	TransferFailed
	IntegrityError
	VerificationError
)

var kindNames = map[ErrorKind]string{
	NotReady:              "not ready",
	DirectoryCreateFailed: "directory create failed",
	TransferFailed:        "transfer failed",
	IntegrityError:        "integrity error",
	VerificationError:     "verification error",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// UploadError reports a failed upload step.
type UploadError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Hint returns a remediation text.
func (e *UploadError) Hint() string {
	switch e.Kind {
	case NotReady:
		return "Connect in step 1 and choose a task type in step 2 before uploading."
	case DirectoryCreateFailed:
		return "Could not create " + e.Path + ". Check that the user can write to the base directory on the remote host."
	case TransferFailed:
		return "The file transfer was interrupted. Check the connection and free disk space on the remote host, then retry."
	case IntegrityError:
		return "The remote file size does not match the local file. Retry the upload."
	case VerificationError:
		return "The uploaded file is not listed in the remote directory. Check the remote permissions and retry."
	default:
		return ""
	}
}

// RemoteSubdir returns the per-task directory name. Unset maps to "".
func RemoteSubdir(t session.TaskType) string {
	switch t {
	case session.TaskBinaryClassification:
		return "binary"
	case session.TaskMultiClass:
		return "multiclass"
	case session.TaskRegression:
		return "regression"
	default:
		return ""
	}
}

// Layout is where a dataset goes on the remote host.
type Layout struct {
	// Dirs lists every directory from the root down to Dir.
	Dirs []string
	// Dir is base/<subdir>/<stem>.
	Dir string
	// Path is Dir/<file name>.
	Path string
}

// Plan computes the remote layout for localPath.
func Plan(baseDir string, t session.TaskType, localPath string) (Layout, error) {
	sub := RemoteSubdir(t)
	if sub == "" {
		return Layout{}, errors.New("task type not selected")
	}
	if !path.IsAbs(baseDir) {
		return Layout{}, fmt.Errorf("base dir %q is not absolute", baseDir)
	}
	name := filepath.Base(localPath)
	if name == "." || name == string(filepath.Separator) {
		return Layout{}, fmt.Errorf("invalid local path %q", localPath)
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		stem = name
	}

	dir := path.Join(baseDir, sub, stem)
	var dirs []string
	for d := dir; d != "/"; d = path.Dir(d) {
		dirs = append([]string{d}, dirs...)
	}
	return Layout{Dirs: dirs, Dir: dir, Path: path.Join(dir, name)}, nil
}

// RemoteProvider hands out the file transfer channel of the live session.
type RemoteProvider interface {
	RemoteFS() (ports.RemoteFS, error)
}

// Request describes one upload.
type Request struct {
	LocalPath string
	BaseDir   string
	TaskType  session.TaskType
	// Progress receives a copy of every byte sent. Optional.
	Progress io.Writer
}

// Uploader transfers datasets over the remote session.
type Uploader struct {
	remote RemoteProvider
	local  ports.FileSystem
}

// New creates an Uploader. An optional FileSystem replaces the real one.
func New(remote RemoteProvider, fsys ...ports.FileSystem) *Uploader {
	var f ports.FileSystem = realfs.New()
	if len(fsys) > 0 && fsys[0] != nil {
		f = fsys[0]
	}
	return &Uploader{remote: remote, local: f}
}

// LocalSize returns the size of the file to upload, for progress totals.
func (u *Uploader) LocalSize(localPath string) (int64, error) {
	info, err := u.local.Stat(localPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Upload creates the remote directory chain, streams the file, and checks
// that the remote copy exists with the same size. It returns the remote path.
// Nothing is cleaned up on failure.
func (u *Uploader) Upload(ctx context.Context, req Request) (string, error) {
	layout, err := Plan(req.BaseDir, req.TaskType, req.LocalPath)
	if err != nil {
		return "", &UploadError{Kind: NotReady, Path: req.LocalPath, Err: err}
	}

	rfs, err := u.remote.RemoteFS()
	if err != nil {
		return "", &UploadError{Kind: NotReady, Path: layout.Path, Err: err}
	}

	for _, dir := range layout.Dirs {
		if err := mkdir(rfs, dir); err != nil {
			return "", &UploadError{Kind: DirectoryCreateFailed, Path: dir, Err: err}
		}
	}

	localInfo, err := u.local.Stat(req.LocalPath)
	if err != nil {
		return "", &UploadError{Kind: TransferFailed, Path: req.LocalPath, Err: err}
	}

	slog.Info("uploading dataset",
		slog.String("local", req.LocalPath),
		slog.String("remote", layout.Path),
		slog.Int64("size", localInfo.Size()))

	sent, err := u.transfer(ctx, rfs, req, layout.Path)
	if err != nil {
		return "", &UploadError{Kind: TransferFailed, Path: layout.Path, Err: err}
	}

	remoteInfo, err := rfs.Stat(layout.Path)
	if err != nil {
		return "", &UploadError{Kind: IntegrityError, Path: layout.Path, Err: err}
	}
	if remoteInfo.Size() != localInfo.Size() {
		return "", &UploadError{Kind: IntegrityError, Path: layout.Path,
			Err: fmt.Errorf("remote size %d, local size %d (sent %d)", remoteInfo.Size(), localInfo.Size(), sent)}
	}

	entries, err := rfs.ReadDir(layout.Dir)
	if err != nil {
		return "", &UploadError{Kind: VerificationError, Path: layout.Dir, Err: err}
	}
	if !listed(entries, path.Base(layout.Path)) {
		return "", &UploadError{Kind: VerificationError, Path: layout.Dir,
			Err: fmt.Errorf("%s not listed", path.Base(layout.Path))}
	}

	slog.Info("dataset uploaded", slog.String("remote", layout.Path))
	return layout.Path, nil
}

func (u *Uploader) transfer(ctx context.Context, rfs ports.RemoteFS, req Request, dest string) (int64, error) {
	src, err := u.local.Open(req.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("open local file: %w", err)
	}
	defer src.Close()

	dst, err := rfs.Create(dest)
	if err != nil {
		return 0, err
	}

	var w io.Writer = dst
	if req.Progress != nil {
		w = io.MultiWriter(dst, req.Progress)
	}
	n, err := io.Copy(w, &ctxReader{ctx: ctx, r: src})
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close remote file: %w", cerr)
	}
	return n, err
}

// mkdir creates dir, treating an existing directory as success.
func mkdir(rfs ports.RemoteFS, dir string) error {
	err := rfs.Mkdir(dir)
	if err == nil {
		return nil
	}
	if info, statErr := rfs.Stat(dir); statErr == nil && info.IsDir() {
		return nil
	}
	return err
}

// listed reports whether the listing has a non-directory entry named name.
func listed(entries []fs.FileInfo, name string) bool {
	for _, e := range entries {
		if e.Name() == name && !e.IsDir() {
			return true
		}
	}
	return false
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
