package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"
	"go.viam.com/test"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Publish(Snapshot{Configuration: []float64{1, 2, 3, 4}, EndEffector: r3.Vector{X: 1, Y: 0, Z: 0}})
	r.Publish(Snapshot{Configuration: []float64{1, 2, 3, 5}, EndEffector: r3.Vector{X: 2, Y: 0, Z: 0}})
	r.Record(r3.Vector{X: 3, Y: 0, Z: 0})

	path := r.Path()
	test.That(t, path, test.ShouldHaveLength, 3)
	test.That(t, path[2], test.ShouldResemble, r3.Vector{X: 3, Y: 0, Z: 0})
	test.That(t, r.Latest().Configuration, test.ShouldResemble, []float64{1, 2, 3, 5})

	// the returned path is a copy
	path[0] = r3.Vector{X: 99, Y: 0, Z: 0}
	test.That(t, r.Path()[0], test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: 0})
}

func TestRefresherRuns(t *testing.T) {
	ran := make(chan struct{}, 16)
	r := NewRefresher(time.Hour, func(ctx context.Context) {
		ran <- struct{}{}
	}, nil)
	r.Start(context.Background())
	defer r.Stop()

	r.Trigger()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("refresh did not run")
	}
}

func TestRefresherCoalesces(t *testing.T) {
	var runs int64
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	r := NewRefresher(time.Hour, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
		started <- struct{}{}
		<-release
	}, nil)
	r.Start(context.Background())

	// first trigger starts a refresh and blocks it
	r.Trigger()
	<-started

	// triggers during the in-flight refresh coalesce into one pending run
	for i := 0; i < 5; i++ {
		r.Trigger()
	}
	close(release)
	<-started

	// give any spurious extra runs a chance to happen, then stop
	time.Sleep(50 * time.Millisecond)
	r.Stop()
	test.That(t, atomic.LoadInt64(&runs), test.ShouldEqual, 2)
}

func TestStreamer(t *testing.T) {
	logger := golog.NewTestLogger(t)
	s := NewStreamer(logger)
	defer s.Close()

	server := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	test.That(t, err, test.ShouldBeNil)
	defer conn.Close()

	want := Snapshot{
		Configuration: []float64{0.1, 0.2, 0.3, 0.4},
		EndEffector:   r3.Vector{X: 1, Y: 2, Z: 3},
		Path:          []r3.Vector{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 2, Z: 3}},
	}
	// publish until the broadcast for this connection lands
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				s.Publish(want)
				time.Sleep(10 * time.Millisecond)
			}
		}
	}()
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Snapshot
	err = conn.ReadJSON(&got)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Configuration, test.ShouldResemble, want.Configuration)
	test.That(t, got.EndEffector, test.ShouldResemble, want.EndEffector)
	test.That(t, got.Path, test.ShouldHaveLength, 2)
}
