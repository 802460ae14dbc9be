package worker

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/bitswalk/ldfpkg/src/common/errors"
	"github.com/bitswalk/ldfpkg/src/common/paths"
)

// SSHOptions configure connections to ssh workers
type SSHOptions struct {
	// User is used when the destination names none; defaults to $USER
	User string
	// Identity is a private key file; when empty the usual
	// ~/.ssh/id_* files are tried
	Identity string
	// KnownHosts is the known_hosts file; defaults to ~/.ssh/known_hosts
	KnownHosts string
	Timeout    time.Duration
}

// SSH runs commands on a remote machine, one session per command. Files
// are streamed through cat.
type SSH struct {
	client  *ssh.Client
	addr    string
	scratch string
	output  io.Writer
}

// Destination is a parsed [user@]host[:port]
type Destination struct {
	User string
	Host string
	Port int
}

func (d Destination) addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// ParseDestination splits [user@]host[:port]
func ParseDestination(dest, defaultUser string) (Destination, error) {
	d := Destination{User: defaultUser, Port: 22}
	if user, host, ok := strings.Cut(dest, "@"); ok {
		d.User = user
		dest = host
	}

	if host, port, err := net.SplitHostPort(dest); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return Destination{}, fmt.Errorf("invalid port %q", port)
		}
		d.Host, d.Port = host, p
	} else {
		d.Host = strings.Trim(dest, "[]")
	}

	if d.Host == "" {
		return Destination{}, fmt.Errorf("missing host in %q", dest)
	}
	if d.User == "" {
		return Destination{}, fmt.Errorf("missing user for %q", dest)
	}
	return d, nil
}

// DialSSH connects to dest and creates a scratch directory there
func DialSSH(ctx context.Context, dest string, opts Options) (*SSH, error) {
	so := opts.SSH
	if so.User == "" {
		so.User = os.Getenv("USER")
	}
	if so.KnownHosts == "" {
		so.KnownHosts = "~/.ssh/known_hosts"
	}
	if so.Timeout == 0 {
		so.Timeout = 30 * time.Second
	}

	d, err := ParseDestination(dest, so.User)
	if err != nil {
		return nil, errors.ErrNoWorker.WithMessagef("Invalid ssh destination %q", dest).WithCause(err)
	}

	hostKeys, err := knownhosts.New(paths.Expand(so.KnownHosts))
	if err != nil {
		return nil, errors.ErrWorkerStart.WithMessagef("Cannot read known hosts %s", so.KnownHosts).WithCause(err)
	}

	auth, err := authMethods(so.Identity)
	if err != nil {
		return nil, errors.ErrWorkerStart.WithMessage("Cannot load ssh credentials").WithCause(err)
	}

	config := &ssh.ClientConfig{
		User:            d.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         so.Timeout,
	}

	dialer := net.Dialer{Timeout: so.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr())
	if err != nil {
		return nil, errors.ErrWorkerStart.WithMessagef("Cannot connect to %s", d.addr()).WithCause(err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, d.addr(), config)
	if err != nil {
		conn.Close()
		return nil, errors.ErrWorkerStart.WithMessagef("ssh handshake with %s failed", d.addr()).WithCause(err)
	}

	w := &SSH{
		client: ssh.NewClient(c, chans, reqs),
		addr:   d.addr(),
		output: opts.Output,
	}

	scratch, err := w.Capture(ctx, "mktemp", "-d", "/tmp/ldfpkg.XXXXXXXX")
	if err != nil {
		w.client.Close()
		return nil, errors.ErrWorkerStart.WithMessage("Cannot create scratch directory").WithCause(err)
	}
	w.scratch = strings.TrimSpace(scratch)

	log.Debug("ssh worker connected", "addr", w.addr, "user", d.User, "scratch", w.scratch)
	return w, nil
}

func authMethods(identity string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			log.Debug("ssh agent unavailable", "error", err)
		}
	}

	candidates := []string{identity}
	if identity == "" {
		candidates = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}
	}

	var signers []ssh.Signer
	for _, c := range candidates {
		path := paths.Expand(c)
		if identity == "" && !paths.IsFile(path) {
			continue
		}
		signer, err := loadKey(path)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no ssh agent and no identity file")
	}
	return methods, nil
}

func loadKey(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(pem)
	if err == nil {
		return signer, nil
	}
	if _, ok := err.(*ssh.PassphraseMissingError); !ok {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is encrypted and stdin is not a terminal", path)
	}
	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", filepath.Base(path))
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKeyWithPassphrase(pem, passphrase)
}

func (w *SSH) session(ctx context.Context) (*ssh.Session, func(), error) {
	s, err := w.client.NewSession()
	if err != nil {
		return nil, nil, err
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Signal(ssh.SIGTERM)
			s.Close()
		case <-done:
		}
	}()
	return s, func() { close(done); s.Close() }, nil
}

func (w *SSH) run(ctx context.Context, cmd string, stdin io.Reader, stdout io.Writer) (int, error) {
	s, release, err := w.session(ctx)
	if err != nil {
		return -1, err
	}
	defer release()

	s.Stdin = stdin
	s.Stdout = stdout
	s.Stderr = w.output

	err = s.Run(cmd)
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus(), nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, err
	}
	return 0, nil
}

// Run executes argv on the remote machine
func (w *SSH) Run(ctx context.Context, argv ...string) (int, error) {
	status, err := w.run(ctx, ShellJoin(argv), nil, w.output)
	if err != nil {
		return -1, errors.ErrWorkerCommand.WithMessagef("Cannot run %s on %s", ShellJoin(argv), w.addr).WithCause(err)
	}
	return status, nil
}

// Capture executes argv remotely and returns its output
func (w *SSH) Capture(ctx context.Context, argv ...string) (string, error) {
	var out strings.Builder
	status, err := w.run(ctx, ShellJoin(argv), nil, &out)
	if err != nil {
		return "", errors.ErrWorkerCommand.WithMessagef("Cannot run %s on %s", ShellJoin(argv), w.addr).WithCause(err)
	}
	if status != 0 {
		return "", commandFailed(argv, status)
	}
	return out.String(), nil
}

// Upload streams a host file to remotePath
func (w *SSH) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot open %s", localPath).WithCause(err)
	}
	defer f.Close()

	status, err := w.run(ctx, "cat > "+ShellQuote(remotePath), f, nil)
	if err == nil && status != 0 {
		err = fmt.Errorf("remote cat exited with status %d", status)
	}
	if err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s to %s:%s", localPath, w.addr, remotePath).WithCause(err)
	}
	return nil
}

// Download streams remotePath into a host file
func (w *SSH) Download(ctx context.Context, remotePath, localPath string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return errors.ErrWorkerTransfer.WithMessagef("Cannot create %s", localPath).WithCause(err)
	}

	status, err := w.run(ctx, "cat "+ShellQuote(remotePath), nil, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && status != 0 {
		err = fmt.Errorf("remote cat exited with status %d", status)
	}
	if err != nil {
		os.Remove(localPath)
		return errors.ErrWorkerTransfer.WithMessagef("Cannot copy %s:%s back to %s", w.addr, remotePath, localPath).WithCause(err)
	}
	return nil
}

// Scratch returns the remote session directory
func (w *SSH) Scratch() string {
	return w.scratch
}

// Close removes the scratch directory and disconnects
func (w *SSH) Close() error {
	if w.scratch != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := w.run(ctx, "rm -rf "+ShellQuote(w.scratch), nil, nil); err != nil {
			log.Warn("Failed to remove remote scratch directory", "addr", w.addr, "error", err)
		}
	}
	return w.client.Close()
}
