package upload

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"reflect"
	"testing"

	"github.com/acolita/train-wizard/internal/ports"
	"github.com/acolita/train-wizard/internal/session"
	"github.com/acolita/train-wizard/internal/testing/fakes/fakefs"
	"github.com/acolita/train-wizard/internal/testing/fakes/fakeremote"
)

type provider struct {
	fs  ports.RemoteFS
	err error
}

func (p provider) RemoteFS() (ports.RemoteFS, error) { return p.fs, p.err }

const localCSV = "/data/credit_default.csv"

func setup(t *testing.T) (*fakefs.FS, *fakeremote.FS, *Uploader) {
	t.Helper()
	local := fakefs.New()
	local.WriteFile(localCSV, []byte("id,limit\n1,2000\n"), 0644)
	remote := fakeremote.New()
	return local, remote, New(provider{fs: remote}, local)
}

func request(t session.TaskType) Request {
	return Request{LocalPath: localCSV, BaseDir: DefaultBaseDir, TaskType: t}
}

func TestRemoteSubdir(t *testing.T) {
	tests := map[session.TaskType]string{
		session.TaskBinaryClassification: "binary",
		session.TaskMultiClass:           "multiclass",
		session.TaskRegression:           "regression",
		session.TaskUnset:                "",
	}
	for tt, want := range tests {
		// pure: same answer every call
		for i := 0; i < 2; i++ {
			if got := RemoteSubdir(tt); got != want {
				t.Errorf("RemoteSubdir(%v) = %q, want %q", tt, got, want)
			}
		}
	}
}

func TestPlan(t *testing.T) {
	l, err := Plan("/srv/2t", session.TaskRegression, "/tmp/sgemm_product.txt")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if l.Path != "/srv/2t/regression/sgemm_product/sgemm_product.txt" {
		t.Errorf("Path = %q", l.Path)
	}
	want := []string{"/srv", "/srv/2t", "/srv/2t/regression", "/srv/2t/regression/sgemm_product"}
	if !reflect.DeepEqual(l.Dirs, want) {
		t.Errorf("Dirs = %q, want %q", l.Dirs, want)
	}

	if _, err := Plan("/srv", session.TaskUnset, "/tmp/a.csv"); err == nil {
		t.Error("expected error for unset task")
	}
	if _, err := Plan("relative", session.TaskMultiClass, "/tmp/a.csv"); err == nil {
		t.Error("expected error for relative base dir")
	}
}

func TestUpload_Success(t *testing.T) {
	_, remote, u := setup(t)
	remote.AddDir("/home/HwHiAiUser")

	var progress bytes.Buffer
	req := request(session.TaskBinaryClassification)
	req.Progress = &progress

	dest, err := u.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if dest != DefaultBaseDir+"/binary/credit_default/credit_default.csv" {
		t.Errorf("dest = %q", dest)
	}
	data, ok := remote.File(dest)
	if !ok || string(data) != "id,limit\n1,2000\n" {
		t.Errorf("remote content = %q", data)
	}
	if progress.Len() != len(data) {
		t.Errorf("progress saw %d bytes, want %d", progress.Len(), len(data))
	}
}

func TestUpload_ExistingDirectoriesSwallowed(t *testing.T) {
	_, remote, u := setup(t)
	remote.AddDir(DefaultBaseDir + "/multiclass/credit_default")

	if _, err := u.Upload(context.Background(), request(session.TaskMultiClass)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if n := len(remote.Mkdirs()); n != 6 {
		t.Errorf("mkdir calls = %d, want one per ancestor", n)
	}
}

func TestUpload_DirectoryCreateFailed(t *testing.T) {
	_, remote, u := setup(t)
	remote.AddDir(DefaultBaseDir)
	remote.FailMkdir(DefaultBaseDir+"/binary", os.ErrPermission)

	_, err := u.Upload(context.Background(), request(session.TaskBinaryClassification))
	assertKind(t, err, DirectoryCreateFailed)
}

func TestUpload_FileInTheWay(t *testing.T) {
	_, remote, u := setup(t)
	remote.AddDir(DefaultBaseDir)
	remote.AddFile(DefaultBaseDir+"/binary", []byte("not a dir"))

	_, err := u.Upload(context.Background(), request(session.TaskBinaryClassification))
	assertKind(t, err, DirectoryCreateFailed)
}

func TestUpload_TransferFailed(t *testing.T) {
	_, remote, u := setup(t)
	remote.FailWrite(errors.New("connection lost"))

	_, err := u.Upload(context.Background(), request(session.TaskRegression))
	assertKind(t, err, TransferFailed)
}

func TestUpload_SizeMismatch(t *testing.T) {
	_, remote, u := setup(t)
	remote.SkewSize(-1)

	_, err := u.Upload(context.Background(), request(session.TaskRegression))
	assertKind(t, err, IntegrityError)
}

func TestUpload_NotListed(t *testing.T) {
	_, remote, u := setup(t)
	remote.HideFiles()

	_, err := u.Upload(context.Background(), request(session.TaskRegression))
	assertKind(t, err, VerificationError)
}

func TestUpload_NotReady(t *testing.T) {
	local := fakefs.New()
	u := New(provider{err: errors.New("not connected")}, local)

	_, err := u.Upload(context.Background(), request(session.TaskBinaryClassification))
	assertKind(t, err, NotReady)

	_, _, u = setup(t)
	_, err = u.Upload(context.Background(), request(session.TaskUnset))
	assertKind(t, err, NotReady)
}

func TestUpload_Cancelled(t *testing.T) {
	_, _, u := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := u.Upload(ctx, request(session.TaskBinaryClassification))
	assertKind(t, err, TransferFailed)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestUpload_MissingLocalFile(t *testing.T) {
	remote := fakeremote.New()
	u := New(provider{fs: remote}, fakefs.New())

	_, err := u.Upload(context.Background(), request(session.TaskBinaryClassification))
	assertKind(t, err, TransferFailed)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want not exist", err)
	}
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	var upErr *UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want *UploadError", err)
	}
	if upErr.Kind != want {
		t.Errorf("kind = %v, want %v (%v)", upErr.Kind, want, err)
	}
	if upErr.Hint() == "" {
		t.Error("empty hint")
	}
}
