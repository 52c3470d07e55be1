package local

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdunlop/assetrig-go/rig/preview"
)

func TestUnixSocket(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, `app.js`), []byte(`console.log(1)`), 0o644))
	sock := filepath.Join(t.TempDir(), `rig.sock`)
	cfg, err := preview.New(dir, Rig(Unix(sock), KeepAlive(-1)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cfg.Serve(ctx, ``) }()

	client := http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, `unix`, sock)
		},
	}}
	var body string
	require.Eventually(t, func() bool {
		rsp, err := client.Get(`http://rig/app.js`)
		if err != nil {
			return false
		}
		defer rsp.Body.Close()
		data, _ := io.ReadAll(rsp.Body)
		body = string(data)
		return rsp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, `console.log(1)`, body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal(`preview server did not stop`)
	}
}

func TestIncomplete(t *testing.T) {
	_, err := preview.New(t.TempDir(), Rig())
	assert.Error(t, err)
	_, err = preview.New(t.TempDir(), Rig(Listen(`tcp`, ``)))
	assert.Error(t, err)
}

func TestStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), `rig.sock`)
	old, err := net.Listen(`unix`, sock)
	require.NoError(t, err)
	old.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, old.Close())
	require.FileExists(t, sock)

	lr := &listener{network: `unix`, address: sock}
	fresh, err := lr.Listen(context.Background())
	require.NoError(t, err)
	require.NoError(t, fresh.Close())

	notSocket := filepath.Join(t.TempDir(), `file`)
	require.NoError(t, os.WriteFile(notSocket, nil, 0o644))
	_, err = (&listener{network: `unix`, address: notSocket}).Listen(context.Background())
	assert.ErrorContains(t, err, `not a socket`)
}
