package transfer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrej220/fanout/internal/sshtest"
	"github.com/andrej220/fanout/pkg/backend"
	"github.com/andrej220/fanout/pkg/backend/transfer"
	"github.com/andrej220/fanout/pkg/executor"
	"github.com/andrej220/fanout/pkg/inventory"
	"github.com/andrej220/fanout/pkg/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*transfer.Adapter, *inventory.Host) {
	t.Helper()
	srv := sshtest.Start(t, "ops", "pw", func(string) sshtest.Reply { return sshtest.Reply{} })
	d, err := executor.NewDialer(executor.Options{
		DialTimeout: 2 * time.Second,
		Resilience:  executor.DefaultResilienceConfig(0, 5),
	})
	require.NoError(t, err)
	h := &inventory.Host{Name: "srv1", Conn: inventory.ConnectionParams{
		Hostname: srv.Host, Port: srv.Port, Username: "ops", Password: "pw",
	}}
	return transfer.New(d), h
}

func task(op, local, remote string) backend.Task {
	return backend.Task{Kind: backend.KindTransfer, Operation: op, Args: map[string]string{
		transfer.ArgLocalPath:  local,
		transfer.ArgRemotePath: remote,
	}}
}

func TestUploadTruncatesDestination(t *testing.T) {
	a, h := setup(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "motd")
	remote := filepath.Join(dir, "remote_motd")
	require.NoError(t, os.WriteFile(local, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(remote, []byte("a much longer previous content"), 0o644))

	tk := task(transfer.OpUpload, local, remote)
	require.NoError(t, a.Validate(tk))
	res := a.ExecuteOne(context.Background(), h, tk)

	require.True(t, res.Ok(), "%v", res.Err())
	rep, _ := res.Value()
	assert.Equal(t, int64(5), rep.Bytes)
	assert.Equal(t, 1, rep.Files)

	got, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDownloadPerHost(t *testing.T) {
	a, h := setup(t)
	dir := t.TempDir()
	remote := filepath.Join(dir, "version.txt")
	require.NoError(t, os.WriteFile(remote, []byte("v1.2.3"), 0o644))

	outDir := t.TempDir()
	tk := task(transfer.OpDownload, filepath.Join(outDir, "version.txt"), remote).WithArg(transfer.ArgPerHost, "true")
	require.NoError(t, a.Validate(tk))
	res := a.ExecuteOne(context.Background(), h, tk)

	require.True(t, res.Ok(), "%v", res.Err())
	rep, _ := res.Value()
	want := filepath.Join(outDir, "srv1_version.txt")
	assert.Equal(t, want, rep.LocalPath)
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", string(got))
}

func TestDownloadMissingRemote(t *testing.T) {
	a, h := setup(t)
	outDir := t.TempDir()
	res := a.ExecuteOne(context.Background(), h, task(transfer.OpDownload, filepath.Join(outDir, "x"), filepath.Join(outDir, "does-not-exist")))

	require.False(t, res.Ok())
	assert.Equal(t, result.KindRemoteExecution, res.Err().Kind)
}

func TestListAndUploadDir(t *testing.T) {
	a, h := setup(t)
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "conf.d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("aa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "conf.d", "b.conf"), []byte("bbb"), 0o644))
	dst := filepath.Join(t.TempDir(), "deploy")

	tk := task(transfer.OpUploadDir, src, dst)
	require.NoError(t, a.Validate(tk))
	res := a.ExecuteOne(context.Background(), h, tk)
	require.True(t, res.Ok(), "%v", res.Err())
	rep, _ := res.Value()
	assert.Equal(t, 2, rep.Files)
	assert.Equal(t, int64(5), rep.Bytes)

	res = a.ExecuteOne(context.Background(), h, backend.Task{Operation: transfer.OpList, Args: map[string]string{transfer.ArgRemotePath: dst}})
	require.True(t, res.Ok(), "%v", res.Err())
	rep, _ = res.Value()
	require.Len(t, rep.Entries, 2)
	assert.Equal(t, "a.txt", rep.Entries[0].Name)
	assert.Equal(t, "conf.d", rep.Entries[1].Name)
	assert.True(t, rep.Entries[1].IsDir)
}

func TestDownloadDir(t *testing.T) {
	a, h := setup(t)
	remote := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "etc", "ssh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "motd"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "etc", "ssh", "sshd_config"), []byte("Port 22"), 0o644))

	tests := []struct {
		name    string
		perHost string
		root    func(out string) string
	}{
		{"shared root", "", func(out string) string { return out }},
		{"per host root", "true", func(out string) string { return filepath.Join(out, "srv1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "backup")
			tk := task(transfer.OpDownloadDir, out, remote)
			if tt.perHost != "" {
				tk = tk.WithArg(transfer.ArgPerHost, tt.perHost)
			}
			require.NoError(t, a.Validate(tk))
			res := a.ExecuteOne(context.Background(), h, tk)

			require.True(t, res.Ok(), "%v", res.Err())
			rep, _ := res.Value()
			root := tt.root(out)
			assert.Equal(t, root, rep.LocalPath)
			assert.Equal(t, 2, rep.Files)
			assert.Equal(t, int64(9), rep.Bytes)

			got, err := os.ReadFile(filepath.Join(root, "etc", "ssh", "sshd_config"))
			require.NoError(t, err)
			assert.Equal(t, "Port 22", string(got))
			assert.FileExists(t, filepath.Join(root, "motd"))
		})
	}
}

func TestDownloadDirRemoteNotADirectory(t *testing.T) {
	a, h := setup(t)
	remote := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(remote, []byte("x"), 0o644))

	res := a.ExecuteOne(context.Background(), h, task(transfer.OpDownloadDir, filepath.Join(t.TempDir(), "out"), remote))
	require.False(t, res.Ok())
	assert.Equal(t, result.KindRemoteExecution, res.Err().Kind)
	assert.Contains(t, res.Err().Message, "not a directory")
}

func TestJoinLocal(t *testing.T) {
	root := filepath.Join("backup", "R1")
	tests := []struct {
		rel  string
		want string
		ok   bool
	}{
		{".", root, true},
		{"etc/ssh/sshd_config", filepath.Join(root, "etc", "ssh", "sshd_config"), true},
		{"../outside", "", false},
		{"etc/../../outside", "", false},
		{"/etc/passwd", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := transfer.JoinLocal(root, tt.rel)
			if !tt.ok {
				assert.Equal(t, result.KindRemoteExecution, result.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	a := transfer.New(nil)
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name string
		task backend.Task
		ok   bool
	}{
		{"unknown op", task("sync", file, "/tmp/x"), false},
		{"upload ok", task(transfer.OpUpload, file, "/tmp/x"), true},
		{"upload missing local", task(transfer.OpUpload, filepath.Join(dir, "nope"), "/tmp/x"), false},
		{"upload directory", task(transfer.OpUpload, dir, "/tmp/x"), false},
		{"upload without remote", task(transfer.OpUpload, file, ""), false},
		{"upload_dir on file", task(transfer.OpUploadDir, file, "/tmp/x"), false},
		{"upload_dir ok", task(transfer.OpUploadDir, dir, "/tmp/x"), true},
		{"download into missing dir", task(transfer.OpDownload, filepath.Join(dir, "no", "f"), "/etc/hosts"), false},
		{"download ok", task(transfer.OpDownload, filepath.Join(dir, "hosts"), "/etc/hosts"), true},
		{"download_dir into missing parent", task(transfer.OpDownloadDir, filepath.Join(dir, "no", "tree"), "/etc"), false},
		{"download_dir ok", task(transfer.OpDownloadDir, filepath.Join(dir, "tree"), "/etc"), true},
		{"list needs remote", task(transfer.OpList, "", ""), false},
		{"bad per_host", task(transfer.OpList, "", "/tmp").WithArg(transfer.ArgPerHost, "sometimes"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Validate(tt.task)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, result.KindValidation, result.KindOf(err))
		})
	}
}

func TestLocalDownloadPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "R1_cfg.txt"), transfer.LocalDownloadPath(filepath.Join("out", "cfg.txt"), "R1", true))
	assert.Equal(t, "cfg.txt", transfer.LocalDownloadPath("cfg.txt", "R1", false))
	assert.Equal(t, filepath.Join("out", "R1"), transfer.LocalTreeRoot("out", "R1", true))
	assert.Equal(t, "out", transfer.LocalTreeRoot("out", "R1", false))
}

func TestCapabilities(t *testing.T) {
	a := transfer.New(nil)
	assert.Len(t, a.Capabilities(), 5)
	assert.True(t, a.Supports(transfer.OpDownloadDir))
	assert.True(t, a.Supports(transfer.OpUploadDir))
	assert.False(t, a.Supports("resume"))
}
