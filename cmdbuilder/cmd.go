package cmdbuilder

import (
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Builder assembles the exec.Cmd for a long-lived child process with
// descriptor passing and a pidfd for exit watching.
type Builder struct {
	path   string
	args   []string
	fds    []*os.File
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	dir    string
	pidfd  *int
	sid    bool
}

func New(path string) *Builder {
	return &Builder{
		path: path,
	}
}

func (b *Builder) AddArgs(args ...string) {
	b.args = append(b.args, args...)
}

// AddFd schedules file for inheritance by the child and returns the fd
// number it will have there.
func (b *Builder) AddFd(file *os.File) int {
	fd := 3 + len(b.fds)
	b.fds = append(b.fds, file)
	return fd
}

func (b *Builder) ConnectStdio(stdin io.Reader, stdout io.Writer, stderr io.Writer) {
	b.stdin = stdin
	b.stdout = stdout
	b.stderr = stderr
}

// SetSession detaches the child into its own session so it survives the
// harness process group.
func (b *Builder) SetSession(session bool) {
	b.sid = session
}

// SetPidFdReceiver points at an int that receives a pidfd for the child
// when the command starts.
func (b *Builder) SetPidFdReceiver(pidfd *int) {
	b.pidfd = pidfd
}

func (b *Builder) SetDir(dir string) {
	b.dir = dir
}

func (b *Builder) Build() *exec.Cmd {
	cmd := exec.Command(b.path, b.args...)
	cmd.Stdin = b.stdin
	cmd.Stdout = b.stdout
	cmd.Stderr = b.stderr
	cmd.Dir = b.dir
	cmd.ExtraFiles = b.fds
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: b.sid,
		PidFD:  b.pidfd,
	}

	return cmd
}

// CloseFds releases the parent's copies of the inherited descriptors. Call
// it after the command has started.
func (b *Builder) CloseFds() {
	for _, fd := range b.fds {
		_ = fd.Close()
	}
}
