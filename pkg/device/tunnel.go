package device

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/network-synapse/synapse/pkg/config"
	"github.com/network-synapse/synapse/pkg/util"
)

// SSHTunnel forwards a local TCP port through an SSH jump host to a remote
// address reachable from that host. Used when the gNMI port of a lab device
// is only reachable from the management host.
type SSHTunnel struct {
	localAddr  string // "127.0.0.1:<port>"
	remoteAddr string
	sshClient  *ssh.Client
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewSSHTunnel dials the jump host and opens a local listener on a random
// port. Connections to the local port are forwarded to remote.
func NewSSHTunnel(cfg config.TunnelConfig, remote string) (*SSHTunnel, error) {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	sshAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	clientCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		// Lab jump hosts; keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	sshClient, err := ssh.Dial("tcp", sshAddr, clientCfg)
	if err != nil {
		return nil, util.NewConnectivityError("ssh-tunnel", sshAddr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: remote,
		sshClient:  sshClient,
		listener:   listener,
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	util.Debugf("ssh tunnel %s -> %s via %s", t.localAddr, remote, sshAddr)
	return t, nil
}

// LocalAddr returns the local address that forwards to the remote address.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish. It is safe to call more than once.
func (t *SSHTunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.listener.Close()
		err = t.sshClient.Close()
		t.wg.Wait()
	})
	return err
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.remoteAddr)
	if err != nil {
		util.Debugf("ssh tunnel dial %s: %v", t.remoteAddr, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
