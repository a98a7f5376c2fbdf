package subscription

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeWire records wire-level operations.
type fakeWire struct {
	mu         sync.Mutex
	subscribes []string
	throttles  []time.Duration
	unsubs     []string
	failSubs   bool
}

func (w *fakeWire) SendSubscribe(topic, msgType string, throttle time.Duration, queueSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failSubs {
		return errors.New("send failed")
	}
	w.subscribes = append(w.subscribes, topic)
	w.throttles = append(w.throttles, throttle)
	return nil
}

func (w *fakeWire) SendUnsubscribe(topic string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unsubs = append(w.unsubs, topic)
	return nil
}

func testDefaults() Defaults {
	return Defaults{MaxEntries: 16, QueueSize: 10}
}

func TestRegistry_Subscribe(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{}

	h, err := r.Subscribe(w, "/odom", "nav_msgs/Odometry", func(Message) {})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if h.Topic != "/odom" || h.Type != "nav_msgs/Odometry" {
		t.Errorf("handle = %+v", h)
	}
	if len(w.subscribes) != 1 || w.subscribes[0] != "/odom" {
		t.Errorf("wire subscribes = %v, want [/odom]", w.subscribes)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistry_SubscribeWithThrottleOverride(t *testing.T) {
	defaults := testDefaults()
	defaults.ThrottleInterval = 10 * time.Millisecond
	r := NewRegistry(defaults, nil)
	w := &fakeWire{}

	override := 200 * time.Millisecond
	if _, err := r.SubscribeWith(w, "/scan", "sensor_msgs/LaserScan", Options{ThrottleInterval: override}, func(Message) {}); err != nil {
		t.Fatalf("SubscribeWith failed: %v", err)
	}
	if len(w.throttles) != 1 || w.throttles[0] != override {
		t.Errorf("wire throttles = %v, want [%v]", w.throttles, override)
	}

	// The override governs local throttling too.
	base := time.Now()
	r.Dispatch("/scan", base, json.RawMessage(`{"seq":1}`))
	r.Dispatch("/scan", base.Add(50*time.Millisecond), json.RawMessage(`{"seq":2}`))
	if got := r.Buffer("/scan").Len(); got != 1 {
		t.Errorf("buffered = %d, want 1 (second message inside override window)", got)
	}

	// Reconnect replay re-issues the same override.
	fresh := &fakeWire{}
	r.ResubscribeAll(fresh)
	if len(fresh.throttles) != 1 || fresh.throttles[0] != override {
		t.Errorf("replayed throttles = %v, want [%v]", fresh.throttles, override)
	}
}

func TestRegistry_SubscribeWireFailureRollsBack(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{failSubs: true}

	if _, err := r.Subscribe(w, "/odom", "nav_msgs/Odometry", func(Message) {}); err == nil {
		t.Fatal("expected error from failed wire subscribe")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0 after rollback", r.Len())
	}
}

func TestRegistry_ResubscribeReplacesCallbackInPlace(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{}

	var first, second int
	if _, err := r.Subscribe(w, "/scan", "sensor_msgs/LaserScan", func(Message) { first++ }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	r.Dispatch("/scan", time.Now(), json.RawMessage(`{}`))

	if _, err := r.Subscribe(w, "/scan", "sensor_msgs/LaserScan", func(Message) { second++ }); err != nil {
		t.Fatalf("re-Subscribe failed: %v", err)
	}

	// No duplicate wire-level subscribe was issued.
	if len(w.subscribes) != 1 {
		t.Errorf("wire subscribes = %v, want single entry", w.subscribes)
	}

	r.Dispatch("/scan", time.Now().Add(time.Second), json.RawMessage(`{}`))

	if first != 1 || second != 1 {
		t.Errorf("callbacks: first=%d second=%d, want 1 and 1", first, second)
	}

	// Delivery stats survive the replacement.
	n, err := r.Delivered("/scan")
	if err != nil {
		t.Fatalf("Delivered failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Delivered = %d, want 2", n)
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{}

	if r.Unsubscribe(w, "/none") {
		t.Error("Unsubscribe of unknown topic should report false")
	}

	r.Subscribe(w, "/odom", "nav_msgs/Odometry", func(Message) {})
	if !r.Unsubscribe(w, "/odom") {
		t.Error("Unsubscribe should report true")
	}
	if len(w.unsubs) != 1 || w.unsubs[0] != "/odom" {
		t.Errorf("wire unsubs = %v, want [/odom]", w.unsubs)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_ResubscribeAllReplaysNetEffect(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{}

	r.Subscribe(w, "/a", "std_msgs/String", func(Message) {})
	r.Subscribe(w, "/b", "std_msgs/String", func(Message) {})
	r.Subscribe(w, "/c", "std_msgs/String", func(Message) {})
	r.Unsubscribe(w, "/b")

	before := r.Topics()
	sort.Strings(before)

	// Simulated reconnect: replay against a fresh socket.
	w2 := &fakeWire{}
	r.ResubscribeAll(w2)

	after := r.Topics()
	sort.Strings(after)

	if len(before) != 2 || before[0] != "/a" || before[1] != "/c" {
		t.Fatalf("topics before = %v, want [/a /c]", before)
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("topics after reconnect = %v, want %v", after, before)
		}
	}

	replayed := append([]string(nil), w2.subscribes...)
	sort.Strings(replayed)
	if len(replayed) != 2 || replayed[0] != "/a" || replayed[1] != "/c" {
		t.Errorf("replayed = %v, want [/a /c]", replayed)
	}
}

func TestRegistry_DispatchUnknownTopic(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	// Must not panic or create entries.
	r.Dispatch("/ghost", time.Now(), json.RawMessage(`{}`))
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_DispatchAppliesThrottle(t *testing.T) {
	d := testDefaults()
	d.ThrottleInterval = 100 * time.Millisecond
	r := NewRegistry(d, nil)
	w := &fakeWire{}

	delivered := 0
	r.Subscribe(w, "/fast", "std_msgs/String", func(Message) { delivered++ })

	base := time.Now()
	for i := 0; i < 10; i++ {
		r.Dispatch("/fast", base.Add(time.Duration(i)*10*time.Millisecond), json.RawMessage(`{}`))
	}

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1 (throttled)", delivered)
	}
}

func TestRegistry_UnsubscribeDuringDelivery(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{}

	r.Subscribe(w, "/self", "std_msgs/String", func(Message) {
		// Unsubscribing from inside the delivery callback must be safe.
		r.Unsubscribe(w, "/self")
	})

	r.Dispatch("/self", time.Now(), json.RawMessage(`{}`))

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry(testDefaults(), nil)
	w := &fakeWire{}

	r.Subscribe(w, "/a", "std_msgs/String", func(Message) {})
	r.Subscribe(w, "/b", "std_msgs/String", func(Message) {})
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestIsLatched(t *testing.T) {
	tests := []struct {
		topic   string
		msgType string
		want    bool
	}{
		{"/map", "nav_msgs/OccupancyGrid", true},
		{"/robot_description", "std_msgs/String", true},
		{"/tf_static", "tf2_msgs/TFMessage", true},
		{"/costmap", "nav_msgs/msg/OccupancyGrid", true},
		{"/odom", "nav_msgs/Odometry", false},
		{"/scan", "sensor_msgs/LaserScan", false},
	}

	for _, tt := range tests {
		if got := IsLatched(tt.topic, tt.msgType); got != tt.want {
			t.Errorf("IsLatched(%q, %q) = %v, want %v", tt.topic, tt.msgType, got, tt.want)
		}
	}
}
