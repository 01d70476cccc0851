package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoshare/pkg/fileops"
	"github.com/marmos91/dittoshare/pkg/registry"
)

func startServer(t *testing.T, reg *registry.Registry, wait time.Duration) (*Server, string, context.CancelFunc, chan error) {
	t.Helper()

	srv := New(Options{
		Listeners:    []ListenerSpec{{Address: "127.0.0.1", Port: 0}},
		ShutdownWait: wait,
	}, reg, fileops.New())

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Run(ctx) }()

	select {
	case <-srv.ListenerReady:
	case err := <-errChan:
		t.Fatalf("server failed before binding: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for listeners")
	}

	addrs := srv.Addrs()
	require.Len(t, addrs, 1)
	return srv, "http://" + addrs[0].String(), cancel, errChan
}

func waitErr(t *testing.T, errChan chan error, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-errChan:
		return err
	case <-time.After(timeout):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func TestServeAndShutdownIdle(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(&registry.Share{Name: "files", Root: t.TempDir(), ListDir: true}))

	srv, base, cancel, errChan := startServer(t, reg, 5*time.Second)
	assert.Equal(t, StateRunning, srv.DrainState())

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	start := time.Now()
	cancel()
	require.NoError(t, waitErr(t, errChan, 10*time.Second))

	// An idle keep-alive connection must not hold shutdown for the
	// full wait.
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, StateClosed, srv.DrainState())
}

func TestDrainWaitsForInFlightRequest(t *testing.T) {
	reg := registry.New()
	release := make(chan struct{})
	require.NoError(t, reg.RegisterHandler("slow", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "done")
	})))

	srv, base, cancel, errChan := startServer(t, reg, 10*time.Second)

	type result struct {
		body string
		err  error
	}
	results := make(chan result, 1)
	go func() {
		resp, err := http.Get(base + "/slow")
		if err != nil {
			results <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		results <- result{body: string(body), err: err}
	}()

	// Let the request reach the handler, then start the drain.
	time.Sleep(200 * time.Millisecond)
	cancel()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateDraining, srv.DrainState())

	close(release)
	require.NoError(t, waitErr(t, errChan, 10*time.Second))
	assert.Equal(t, StateClosed, srv.DrainState())

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, "done", res.body, "in-flight request completes during drain")
}

func TestDrainForceClosesAtDeadline(t *testing.T) {
	reg := registry.New()
	stuck := make(chan struct{})
	t.Cleanup(func() { close(stuck) })
	require.NoError(t, reg.RegisterHandler("stuck", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-stuck
	})))

	srv, base, cancel, errChan := startServer(t, reg, 300*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		resp, err := http.Get(base + "/stuck")
		if resp != nil {
			resp.Body.Close()
		}
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	cancel()

	// Forced closes are not an error: Run still returns nil.
	require.NoError(t, waitErr(t, errChan, 10*time.Second))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "waited for the drain deadline")
	assert.Less(t, elapsed, 5*time.Second, "did not wait for the stuck handler")
	assert.Equal(t, StateClosed, srv.DrainState())

	// The cut client sees a transport error, not a hung call.
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("force-closed client call never returned")
	}
}

func TestNewConnectionsRefusedAfterShutdown(t *testing.T) {
	reg := registry.New()
	_, base, cancel, errChan := startServer(t, reg, time.Second)

	cancel()
	require.NoError(t, waitErr(t, errChan, 10*time.Second))

	client := &http.Client{Timeout: time.Second}
	_, err := client.Get(base + "/")
	require.Error(t, err, "closed listener must refuse new connections")
}

func TestBindFailureAbortsStartup(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	takenPort := taken.Addr().(*net.TCPAddr).Port

	srv := New(Options{
		Listeners: []ListenerSpec{
			{Address: "127.0.0.1", Port: 0},
			{Address: "127.0.0.1", Port: takenPort},
		},
		ShutdownWait: time.Second,
	}, registry.New(), fileops.New())

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
	assert.Empty(t, srv.Addrs(), "partial binds are rolled back")

	select {
	case <-srv.ListenerReady:
		t.Fatal("ListenerReady closed despite bind failure")
	default:
	}
}

func TestNoListenersConfigured(t *testing.T) {
	srv := New(Options{}, registry.New(), fileops.New())
	require.Error(t, srv.Run(context.Background()))
}

func TestMultipleListenersShareOneRouter(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Add(&registry.Share{Name: "files", Root: t.TempDir(), ListDir: true}))

	srv := New(Options{
		Listeners: []ListenerSpec{
			{Address: "127.0.0.1", Port: 0},
			{Address: "127.0.0.1", Port: 0},
		},
		ShutdownWait: time.Second,
	}, reg, fileops.New())

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Run(ctx) }()
	select {
	case <-srv.ListenerReady:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for listeners")
	}

	addrs := srv.Addrs()
	require.Len(t, addrs, 2)
	for _, addr := range addrs {
		resp, err := http.Get("http://" + addr.String() + "/files/")
		require.NoError(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	cancel()
	require.NoError(t, waitErr(t, errChan, 10*time.Second))
}
