package unix

import (
	"bytes"
	"github.com/ValentinKolb/andx/rpc/common"
	"net"
	"path/filepath"
	"testing"
)

// TestDialUnix tests a frame read over a Unix socket
func TestDialUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "andx.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer listener.Close()

	frame := []byte{0, 0, 0, 2, 'o', 'k'}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Write(frame)
	}()

	config := common.DefaultClientConfig()
	config.Transport.Endpoint = path
	config.Transport.SocketConf.ReadBufferSize = 32 * 1024

	tr, err := Dial(config)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer tr.Close()

	got, err := tr.ReadFrame(nil)
	if err != nil || !bytes.Equal(got, frame) {
		t.Errorf("Expected %v, got %v (%v)", frame, got, err)
	}
}
