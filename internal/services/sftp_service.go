package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/maxMuster194/testchart-sub002/internal/config"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrTransfer = errors.New("remote transfer failed")

// sftpDialer opens one session. The returned close func releases the SFTP
// client and its transport.
type sftpDialer func(ctx context.Context) (*sftp.Client, func() error, error)

type SftpService struct {
	cfg  config.SFTPConfig
	dial sftpDialer
	log  *zap.Logger
}

func NewSftpService(cfg config.SFTPConfig, log *zap.Logger) (*SftpService, error) {
	if cfg.Host == "" {
		return nil, errors.New("sftp host is empty")
	}
	if cfg.Username == "" {
		return nil, errors.New("sftp username is empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &SftpService{cfg: cfg, log: log.Named("sftp")}
	s.dial = s.dialSSH
	return s, nil
}

// Fetch reads the whole remote file in a session of its own. The session is
// closed on every path, and the configured timeout bounds connect and read
// together.
func (s *SftpService) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("sftp service is nil")
	}
	if s.dial == nil {
		return nil, errors.New("sftp dialer is nil")
	}
	if remotePath == "" {
		return nil, errors.New("remote path is empty")
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	client, closeSession, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open session to %s: %w", ErrTransfer, s.cfg.Host, err)
	}

	release := sync.OnceValue(closeSession)
	stop := context.AfterFunc(ctx, func() { _ = release() })
	defer func() {
		stop()
		if closeErr := release(); closeErr != nil {
			s.log.Debug("close sftp session", zap.String("path", remotePath), zap.Error(closeErr))
		}
	}()

	data, err := readRemoteFile(client, remotePath, s.cfg.MaxFileBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrTransfer, remotePath, ctxErr)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransfer, remotePath, err)
	}

	s.log.Debug("fetched remote file", zap.String("path", remotePath), zap.Int("bytes", len(data)))
	return data, nil
}

func readRemoteFile(client *sftp.Client, remotePath string, maxBytes int64) ([]byte, error) {
	if client == nil {
		return nil, errors.New("sftp client is nil")
	}

	file, err := client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("open remote file: %w", err)
	}

	var reader io.Reader = file
	if maxBytes > 0 {
		reader = io.LimitReader(file, maxBytes+1)
	}

	data, readErr := io.ReadAll(reader)
	closeErr := file.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read remote file: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close remote file: %w", closeErr)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("remote file exceeds %d bytes", maxBytes)
	}

	return data, nil
}

func (s *SftpService) dialSSH(ctx context.Context) (*sftp.Client, func() error, error) {
	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	sshConfig := &ssh.ClientConfig{
		User:            s.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.cfg.Timeout,
	}

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("start sftp subsystem: %w", err)
	}

	closeSession := func() error {
		clientErr := client.Close()
		sshErr := sshClient.Close()
		return errors.Join(clientErr, sshErr)
	}

	return client, closeSession, nil
}

func (s *SftpService) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.cfg.KnownHostsPath == "" {
		s.log.Warn("no known_hosts file configured, accepting any sftp host key", zap.String("host", s.cfg.Host))
		return ssh.InsecureIgnoreHostKey(), nil
	}

	callback, err := knownhosts.New(s.cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	return callback, nil
}
