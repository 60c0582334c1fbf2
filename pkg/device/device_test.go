package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skidbot-team/skidbot/go-controller/pkg/command"
)

// fakeRobot is an httptest stand-in for the onboard controller.
type fakeRobot struct {
	lock     sync.Mutex
	counts   string
	imu      string
	commands []string
}

func (f *fakeRobot) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/counts", func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		defer f.lock.Unlock()
		w.Write([]byte(f.counts))
	})
	mux.HandleFunc("/imu", func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		defer f.lock.Unlock()
		w.Write([]byte(f.imu))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.lock.Lock()
		defer f.lock.Unlock()
		f.commands = append(f.commands, r.URL.Path)
	})
	return mux
}

func (f *fakeRobot) set(counts, imu string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.counts = counts
	f.imu = imu
}

func newTestGateway(t *testing.T, robot *fakeRobot) *Gateway {
	srv := httptest.NewServer(robot.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, &http.Client{Timeout: 2 * time.Second})
}

func TestReadCounts(t *testing.T) {
	robot := &fakeRobot{counts: "120|-43"}
	gw := newTestGateway(t, robot)

	counts, err := gw.ReadCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, Counts{Left: 120, Right: -43}, counts)
}

func TestReadCountsStripsNoise(t *testing.T) {
	robot := &fakeRobot{counts: " x12y | -4 3\r\n"}
	gw := newTestGateway(t, robot)

	counts, err := gw.ReadCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, Counts{Left: 12, Right: -43}, counts)
}

func TestReadCountsMalformedFieldKeepsPrevious(t *testing.T) {
	robot := &fakeRobot{counts: "12|34"}
	gw := newTestGateway(t, robot)

	_, err := gw.ReadCounts(context.Background())
	require.NoError(t, err)

	// The right field turns to garbage: left updates, right sticks.
	robot.set("56|abc", "")
	counts, err := gw.ReadCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, Counts{Left: 56, Right: 34}, counts)
}

func TestReadCountsTransportFailure(t *testing.T) {
	robot := &fakeRobot{counts: "7|8"}
	srv := httptest.NewServer(robot.handler())
	gw := New(srv.URL, &http.Client{Timeout: 2 * time.Second})

	_, err := gw.ReadCounts(context.Background())
	require.NoError(t, err)

	srv.Close()
	counts, err := gw.ReadCounts(context.Background())
	require.Error(t, err)
	// Previous values still come back alongside the error.
	require.Equal(t, Counts{Left: 7, Right: 8}, counts)
}

func TestReadIMU(t *testing.T) {
	robot := &fakeRobot{imu: `{"gx": 0.5, "gy": -0.25, "gz": 1.0, "ax": 9.81}`}
	gw := newTestGateway(t, robot)

	imu, err := gw.ReadIMU(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 0.5, imu["gx"], 1e-9)
	require.InDelta(t, 9.81, imu["ax"], 1e-9)
}

func TestReadIMUNotAnObject(t *testing.T) {
	robot := &fakeRobot{imu: `[1, 2, 3]`}
	gw := newTestGateway(t, robot)

	_, err := gw.ReadIMU(context.Background())
	require.Error(t, err)
}

func TestExecuteHitsActionEndpoint(t *testing.T) {
	robot := &fakeRobot{}
	gw := newTestGateway(t, robot)

	gw.Execute(context.Background(), command.Forward)
	gw.Execute(context.Background(), command.Stop)

	robot.lock.Lock()
	defer robot.lock.Unlock()
	require.Equal(t, []string{"/forward", "/stop"}, robot.commands)
}

func TestExecuteFailureDoesNotPanic(t *testing.T) {
	gw := New("http://127.0.0.1:1", &http.Client{Timeout: 100 * time.Millisecond})
	// Fire-and-forget: no error surfaces, nothing blows up.
	gw.Execute(context.Background(), command.Stop)
}
