package reachability

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// writeIface creates root/<name>/operstate (and carrier when non-empty).
func writeIface(t *testing.T, root, name, operstate, carrier string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "operstate"), []byte(operstate+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if carrier != "" {
		if err := os.WriteFile(filepath.Join(dir, "carrier"), []byte(carrier+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := map[string]Transport{
		"eth0":       TransportWired,
		"enp3s0":     TransportWired,
		"wlan0":      TransportLocalArea,
		"wlp2s0":     TransportLocalArea,
		"wwan0":      TransportWideAreaMetered,
		"rmnet_data": TransportWideAreaMetered,
		"ppp0":       TransportWideAreaMetered,
		"ib0":        TransportUnknown,
	}
	for iface, want := range tests {
		if got := Classify(iface); got != want {
			t.Errorf("Classify(%q) = %q, want %q", iface, got, want)
		}
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name   string
		ifaces [][3]string
		want   Status
	}{
		{
			name:   "only loopback",
			ifaces: [][3]string{{"lo", "unknown", "1"}},
			want:   Status{Transport: TransportUnknown},
		},
		{
			name:   "wifi down",
			ifaces: [][3]string{{"lo", "unknown", "1"}, {"wlan0", "down", ""}},
			want:   Status{Transport: TransportUnknown},
		},
		{
			name:   "wifi up",
			ifaces: [][3]string{{"wlan0", "up", ""}},
			want:   Status{Connected: true, Transport: TransportLocalArea, Interface: "wlan0"},
		},
		{
			name:   "wired preferred over wifi and cellular",
			ifaces: [][3]string{{"wwan0", "up", ""}, {"wlan0", "up", ""}, {"eth0", "up", ""}},
			want:   Status{Connected: true, Transport: TransportWired, Interface: "eth0"},
		},
		{
			name:   "ppp reports unknown with carrier",
			ifaces: [][3]string{{"ppp0", "unknown", "1"}},
			want:   Status{Connected: true, Transport: TransportWideAreaMetered, Interface: "ppp0"},
		},
		{
			name:   "docker bridge ignored",
			ifaces: [][3]string{{"docker0", "up", ""}, {"veth1234", "up", ""}},
			want:   Status{Transport: TransportUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, i := range tt.ifaces {
				writeIface(t, root, i[0], i[1], i[2])
			}
			got, err := Probe(root)
			if err != nil {
				t.Fatalf("Probe() failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Probe() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProbe_MissingRoot(t *testing.T) {
	got, err := Probe(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("Probe() on missing root succeeded")
	}
	if got.Connected {
		t.Error("missing root reported connected")
	}
}

func receive(t *testing.T, ch <-chan Status) Status {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for status")
	}
	return Status{}
}

func TestMonitor_PublishesChanges(t *testing.T) {
	root := t.TempDir()
	writeIface(t, root, "wlan0", "down", "")

	m := NewMonitor(Config{Root: root, RecheckInterval: 20 * time.Millisecond}, log.New(io.Discard, "", 0))
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer m.Stop()

	if m.Current().Connected {
		t.Fatal("Current() connected with wlan0 down")
	}

	writeIface(t, root, "wlan0", "up", "")
	got := receive(t, ch)
	want := Status{Connected: true, Transport: TransportLocalArea, Interface: "wlan0"}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Status{}, "ChangedAt")); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if got.ChangedAt.IsZero() {
		t.Error("ChangedAt not stamped")
	}

	writeIface(t, root, "wlan0", "down", "")
	if got := receive(t, ch); got.Connected {
		t.Errorf("expected offline, got %v", got)
	}
}

func TestMonitor_StartTwiceAndStop(t *testing.T) {
	root := t.TempDir()
	m := NewMonitor(Config{Root: root, RecheckInterval: time.Hour}, log.New(io.Discard, "", 0))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}

	ch, _ := m.Subscribe()
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscription still open after Stop()")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}

func TestStatic(t *testing.T) {
	s := Offline()
	ch, unsubscribe := s.Subscribe()

	s.SetConnected(false)
	select {
	case got := <-ch:
		t.Fatalf("unchanged status published: %v", got)
	default:
	}

	s.SetConnected(true)
	if got := receive(t, ch); !got.Connected {
		t.Errorf("published %v, want connected", got)
	}
	if !s.Current().Connected {
		t.Error("Current() not updated")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel open after unsubscribe")
	}
}

func TestHub_SlowSubscriberGetsLatest(t *testing.T) {
	var h hub
	ch, unsubscribe := h.subscribe()
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		h.publish(Status{Connected: i%2 == 0, Interface: string(rune('a' + i))})
	}

	var last Status
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Interface != "j" {
		t.Errorf("last delivered = %q, want j", last.Interface)
	}
}
