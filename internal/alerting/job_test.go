package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"broadcast-board/internal/storage"
)

type fakeStore struct {
	alerts   []storage.Alert
	channels map[string]int64
	slots    []storage.Slot
	windows  [][2]time.Time
}

func (s *fakeStore) ListActiveAlerts(context.Context) ([]storage.Alert, error) {
	return s.alerts, nil
}

func (s *fakeStore) ChannelIDsByCodes(_ context.Context, codes []string) ([]int64, error) {
	var ids []int64
	for _, code := range codes {
		if id, ok := s.channels[code]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) ListUpcomingSlots(_ context.Context, ids []int64, from, to time.Time) ([]storage.Slot, error) {
	s.windows = append(s.windows, [2]time.Time{from, to})
	var out []storage.Slot
	for _, slot := range s.slots {
		if slot.StartAt.Before(from) || slot.StartAt.After(to) {
			continue
		}
		for _, id := range ids {
			if slot.ChannelID == id {
				out = append(out, slot)
			}
		}
	}
	return out, nil
}

type sentMessage struct {
	destination string
	msg         Message
}

type recordingNotifier struct {
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, destination string, msg Message) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{destination: destination, msg: msg})
	return nil
}

type memDeduper struct {
	keys map[string]bool
	err  error
}

func (d *memDeduper) Once(_ context.Context, key string, _ time.Duration, fn func() error) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	if err := fn(); err != nil {
		delete(d.keys, key)
		return true, err
	}
	return true, nil
}

var jobNow = time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

func newAlertFixture() *fakeStore {
	return &fakeStore{
		alerts: []storage.Alert{
			{ID: 1, Name: "주방", TargetChannelCodes: []string{"ns", "gsshop"}, Keywords: []string{"밀폐용기"}, NotifyBeforeMinutes: 30, DestinationType: storage.DestinationSlack, DestinationValue: "https://hooks.test/1", Active: true},
			{ID: 2, Name: "빈 목적지", TargetChannelCodes: []string{"ns"}, Keywords: []string{"밀폐용기"}, NotifyBeforeMinutes: 30, DestinationType: storage.DestinationSlack, Active: true},
			{ID: 3, Name: "없는 채널", TargetChannelCodes: []string{"missing"}, Keywords: []string{"밀폐용기"}, NotifyBeforeMinutes: 30, DestinationType: storage.DestinationEmail, DestinationValue: "a@b.test", Active: true},
		},
		channels: map[string]int64{"ns": 10},
		slots: []storage.Slot{
			{ID: 100, ChannelID: 10, StartAt: jobNow.Add(10 * time.Minute), RawTitle: "[단독] 밀폐용기 세트", NormalizedTitle: "밀폐용기 세트", PriceText: "39,900원"},
			{ID: 101, ChannelID: 10, StartAt: jobNow.Add(20 * time.Minute), RawTitle: "무선 청소기", NormalizedTitle: "무선 청소기"},
			{ID: 102, ChannelID: 10, StartAt: jobNow.Add(45 * time.Minute), RawTitle: "밀폐용기 리필", NormalizedTitle: "밀폐용기 리필"},
		},
	}
}

func TestJobSendsMatchingSlotsInWindow(t *testing.T) {
	store := newAlertFixture()
	slack := &recordingNotifier{}
	job := NewJob(JobOptions{}, store, map[storage.DestinationType]Notifier{storage.DestinationSlack: slack}, nil, testLogger()).
		WithClock(func() time.Time { return jobNow })

	sent, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sent != 1 || len(slack.sent) != 1 {
		t.Fatalf("sent=%d messages=%d", sent, len(slack.sent))
	}
	got := slack.sent[0]
	if got.destination != "https://hooks.test/1" {
		t.Fatalf("destination = %q", got.destination)
	}
	want := "[주방] 곧 시작하는 방송: [단독] 밀폐용기 세트\n시작: 2026-03-10T01:10:00 (UTC)\n가격: 39,900원"
	if got.msg.Text != want {
		t.Fatalf("text = %q, want %q", got.msg.Text, want)
	}
	if len(store.windows) != 1 || !store.windows[0][1].Equal(jobNow.Add(30*time.Minute)) {
		t.Fatalf("windows = %v", store.windows)
	}
}

func TestJobDedupeSuppressesRepeats(t *testing.T) {
	store := newAlertFixture()
	slack := &recordingNotifier{}
	dedupe := &memDeduper{keys: make(map[string]bool)}
	job := NewJob(JobOptions{}, store, map[storage.DestinationType]Notifier{storage.DestinationSlack: slack}, dedupe, testLogger()).
		WithClock(func() time.Time { return jobNow })

	for i := 0; i < 2; i++ {
		if _, err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	if len(slack.sent) != 1 || !dedupe.keys["alert:1:100"] {
		t.Fatalf("messages=%d keys=%v", len(slack.sent), dedupe.keys)
	}
}

func TestJobSendsWhenDedupeUnavailable(t *testing.T) {
	store := newAlertFixture()
	slack := &recordingNotifier{}
	dedupe := &memDeduper{err: errors.New("connection refused")}
	job := NewJob(JobOptions{}, store, map[storage.DestinationType]Notifier{storage.DestinationSlack: slack}, dedupe, testLogger()).
		WithClock(func() time.Time { return jobNow })

	sent, err := job.Run(context.Background())
	if err != nil || sent != 1 {
		t.Fatalf("sent=%d err=%v", sent, err)
	}
}

func TestJobDeliveryFailureIsNotFatal(t *testing.T) {
	store := newAlertFixture()
	slack := &recordingNotifier{err: errors.New("webhook down")}
	job := NewJob(JobOptions{}, store, map[storage.DestinationType]Notifier{storage.DestinationSlack: slack}, nil, testLogger()).
		WithClock(func() time.Time { return jobNow })

	sent, err := job.Run(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("sent=%d err=%v", sent, err)
	}
}

func TestMatches(t *testing.T) {
	slot := storage.Slot{NormalizedTitle: "lg 올레드 tv", Category: "가전"}
	cases := []struct {
		name  string
		alert storage.Alert
		want  bool
	}{
		{"case-insensitive keyword", storage.Alert{Keywords: []string{"OLED", "TV"}}, true},
		{"no keyword hit", storage.Alert{Keywords: []string{"냉장고"}}, false},
		{"no keywords", storage.Alert{}, false},
		{"category filter passes", storage.Alert{Keywords: []string{"tv"}, Categories: []string{"가전"}}, true},
		{"category filter blocks", storage.Alert{Keywords: []string{"tv"}, Categories: []string{"식품"}}, false},
	}
	for _, tc := range cases {
		if got := Matches(tc.alert, slot); got != tc.want {
			t.Fatalf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRenderWithoutPrice(t *testing.T) {
	msg := Render(storage.Alert{Name: "가전"}, storage.Slot{RawTitle: "TV", StartAt: jobNow})
	if !strings.HasSuffix(msg.Text, "가격: 정보없음") || msg.Subject != "[BroadcastBoard] 가전" {
		t.Fatalf("unexpected message %+v", msg)
	}
}
