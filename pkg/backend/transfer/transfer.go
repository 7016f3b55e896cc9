// Package transfer moves files to and from hosts over SFTP.
package transfer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	OpUpload      = "upload"
	OpDownload    = "download"
	OpList        = "list"
	OpUploadDir   = "upload_dir"
	OpDownloadDir = "download_dir"

	ArgLocalPath  = "local_path"
	ArgRemotePath = "remote_path"
	// ArgPerHost makes downloads land in <dir>/<host>_<name>, and directory
	// downloads in <dir>/<host>, so hosts do not overwrite each other.
	ArgPerHost = "per_host"
)

var operations = []backend.Capability{
	{Name: OpUpload, Description: "Upload a local file to the remote path"},
	{Name: OpDownload, Description: "Download a remote file to the local path"},
	{Name: OpList, Description: "List a remote directory"},
	{Name: OpUploadDir, Description: "Upload a local directory tree to the remote path"},
	{Name: OpDownloadDir, Description: "Download a remote directory tree to the local path"},
}

type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
	IsDir   bool      `json:"is_dir"`
}

// Report describes a completed transfer.
type Report struct {
	Operation  string  `json:"operation"`
	LocalPath  string  `json:"local_path,omitempty"`
	RemotePath string  `json:"remote_path"`
	Bytes      int64   `json:"bytes"`
	Files      int     `json:"files"`
	Entries    []Entry `json:"entries,omitempty"`
}

// Connector hands an authenticated SSH client to fn for the lifetime of the call.
type Connector interface {
	WithClient(ctx context.Context, host *inventory.Host, fn func(*ssh.Client) error) error
}

var (
	_ backend.Adapter[Report] = (*Adapter)(nil)
	_ Connector               = (*executor.Dialer)(nil)
)

type Adapter struct {
	conn Connector
}

func New(conn Connector) *Adapter {
	return &Adapter{conn: conn}
}

func (a *Adapter) Kind() backend.Kind { return backend.KindTransfer }

func (a *Adapter) Supports(operation string) bool {
	for _, op := range operations {
		if op.Name == operation {
			return true
		}
	}
	return false
}

func (a *Adapter) Capabilities() []backend.Capability {
	return append([]backend.Capability(nil), operations...)
}

// Validate checks arguments and the local side of the transfer.
func (a *Adapter) Validate(task backend.Task) error {
	if !a.Supports(task.Operation) {
		return result.Errorf(result.KindValidation, "unknown transfer operation %q", task.Operation)
	}
	if _, err := task.BoolArg(ArgPerHost); err != nil {
		return err
	}
	switch task.Operation {
	case OpList:
		return backend.RequireArgs(task, ArgRemotePath)
	case OpUpload:
		if err := backend.RequireArgs(task, ArgLocalPath, ArgRemotePath); err != nil {
			return err
		}
		info, err := os.Stat(task.Arg(ArgLocalPath))
		if err != nil {
			return result.Errorf(result.KindValidation, "local file %q: %v", task.Arg(ArgLocalPath), err)
		}
		if !info.Mode().IsRegular() {
			return result.Errorf(result.KindValidation, "local path %q is not a regular file", task.Arg(ArgLocalPath))
		}
	case OpUploadDir:
		if err := backend.RequireArgs(task, ArgLocalPath, ArgRemotePath); err != nil {
			return err
		}
		info, err := os.Stat(task.Arg(ArgLocalPath))
		if err != nil {
			return result.Errorf(result.KindValidation, "local directory %q: %v", task.Arg(ArgLocalPath), err)
		}
		if !info.IsDir() {
			return result.Errorf(result.KindValidation, "local path %q is not a directory", task.Arg(ArgLocalPath))
		}
	case OpDownload, OpDownloadDir:
		if err := backend.RequireArgs(task, ArgLocalPath, ArgRemotePath); err != nil {
			return err
		}
		dir := filepath.Dir(filepath.Clean(task.Arg(ArgLocalPath)))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return result.Errorf(result.KindValidation, "local directory %q does not exist", dir)
		}
	}
	return nil
}

// LocalDownloadPath is where a download for host is written.
func LocalDownloadPath(localPath, host string, perHost bool) string {
	if !perHost {
		return localPath
	}
	return filepath.Join(filepath.Dir(localPath), host+"_"+filepath.Base(localPath))
}

// LocalTreeRoot is the local directory a directory download for host fills.
func LocalTreeRoot(localPath, host string, perHost bool) string {
	if !perHost {
		return localPath
	}
	return filepath.Join(localPath, host)
}

// JoinLocal places the slash separated remote relative path rel under root.
// Paths that would leave root are rejected.
func JoinLocal(root, rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", result.Errorf(result.KindRemoteExecution, "remote entry %q escapes the local directory", rel)
	}
	return filepath.Join(root, rel), nil
}

func (a *Adapter) ExecuteOne(ctx context.Context, host *inventory.Host, task backend.Task) result.Result[Report] {
	report := Report{
		Operation:  task.Operation,
		LocalPath:  task.Arg(ArgLocalPath),
		RemotePath: task.Arg(ArgRemotePath),
	}
	perHost, _ := task.BoolArg(ArgPerHost)
	switch task.Operation {
	case OpDownload:
		report.LocalPath = LocalDownloadPath(report.LocalPath, host.Name, perHost)
	case OpDownloadDir:
		report.LocalPath = LocalTreeRoot(report.LocalPath, host.Name, perHost)
	}

	err := a.conn.WithClient(ctx, host, func(client *ssh.Client) error {
		sc, err := sftp.NewClient(client)
		if err != nil {
			return fmt.Errorf("start sftp: %w", err)
		}
		defer sc.Close()

		switch task.Operation {
		case OpUpload:
			return upload(sc, &report)
		case OpDownload:
			return download(sc, &report)
		case OpList:
			return list(sc, &report)
		case OpUploadDir:
			return uploadDir(sc, &report)
		case OpDownloadDir:
			return downloadDir(sc, &report)
		}
		return result.Errorf(result.KindValidation, "unknown transfer operation %q", task.Operation)
	})
	if err != nil {
		return backend.Fail[Report](host.Name, err)
	}
	return result.Success(report)
}

// remoteError marks failures reported by the SFTP server itself.
func remoteError(op, p string, err error) error {
	if _, ok := err.(*sftp.StatusError); ok {
		return result.Errorf(result.KindRemoteExecution, "%s %s: %v", op, p, err)
	}
	if os.IsNotExist(err) || os.IsPermission(err) {
		return result.Errorf(result.KindRemoteExecution, "%s %s: %v", op, p, err)
	}
	return fmt.Errorf("%s %s: %w", op, p, err)
}

// copyToRemote always truncates the destination; interrupted copies restart from zero.
func copyToRemote(sc *sftp.Client, local, remote string) (int64, error) {
	src, err := os.Open(local)
	if err != nil {
		return 0, result.Errorf(result.KindRemoteExecution, "open local %s: %v", local, err)
	}
	defer src.Close()

	dst, err := sc.OpenFile(remote, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return 0, remoteError("create", remote, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, remoteError("write", remote, err)
	}
	return n, nil
}

func upload(sc *sftp.Client, r *Report) error {
	n, err := copyToRemote(sc, r.LocalPath, r.RemotePath)
	r.Bytes, r.Files = n, 1
	return err
}

// copyToLocal truncates the local destination like copyToRemote does.
func copyToLocal(sc *sftp.Client, remote, local string) (int64, error) {
	src, err := sc.Open(remote)
	if err != nil {
		return 0, remoteError("open", remote, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, result.Errorf(result.KindRemoteExecution, "create local %s: %v", local, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, remoteError("read", remote, err)
	}
	return n, nil
}

func download(sc *sftp.Client, r *Report) error {
	n, err := copyToLocal(sc, r.RemotePath, r.LocalPath)
	r.Bytes, r.Files = n, 1
	return err
}

func list(sc *sftp.Client, r *Report) error {
	infos, err := sc.ReadDir(r.RemotePath)
	if err != nil {
		return remoteError("list", r.RemotePath, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	r.Entries = make([]Entry, 0, len(infos))
	for _, fi := range infos {
		r.Entries = append(r.Entries, Entry{
			Name:    fi.Name(),
			Size:    fi.Size(),
			Mode:    fi.Mode().String(),
			ModTime: fi.ModTime().UTC(),
			IsDir:   fi.IsDir(),
		})
	}
	r.Files = len(r.Entries)
	return nil
}

func uploadDir(sc *sftp.Client, r *Report) error {
	root := filepath.Clean(r.LocalPath)
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return result.Errorf(result.KindRemoteExecution, "walk %s: %v", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		remote := path.Join(r.RemotePath, filepath.ToSlash(rel))
		if d.IsDir() {
			if err := sc.MkdirAll(remote); err != nil {
				return remoteError("mkdir", remote, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		n, err := copyToRemote(sc, p, remote)
		if err != nil {
			return err
		}
		r.Bytes += n
		r.Files++
		return nil
	})
}

// downloadDir mirrors the remote tree under r.LocalPath. Only directories and
// regular files are copied.
func downloadDir(sc *sftp.Client, r *Report) error {
	root := path.Clean(r.RemotePath)
	info, err := sc.Stat(root)
	if err != nil {
		return remoteError("stat", root, err)
	}
	if !info.IsDir() {
		return result.Errorf(result.KindRemoteExecution, "remote path %s is not a directory", root)
	}

	walker := sc.Walk(root)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return remoteError("walk", walker.Path(), err)
		}
		local, err := JoinLocal(r.LocalPath, remoteRel(root, path.Clean(walker.Path())))
		if err != nil {
			return err
		}
		fi := walker.Stat()
		switch {
		case fi.IsDir():
			if err := os.MkdirAll(local, 0o755); err != nil {
				return result.Errorf(result.KindRemoteExecution, "create local %s: %v", local, err)
			}
		case fi.Mode().IsRegular():
			n, err := copyToLocal(sc, walker.Path(), local)
			if err != nil {
				return err
			}
			r.Bytes += n
			r.Files++
		}
	}
	return nil
}

// remoteRel returns p relative to root. A p outside root is returned with a
// leading "../" so that JoinLocal rejects it.
func remoteRel(root, p string) string {
	if p == root {
		return "."
	}
	prefix := strings.TrimSuffix(root, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return "../" + strings.TrimPrefix(p, "/")
	}
	return strings.TrimPrefix(p, prefix)
}
