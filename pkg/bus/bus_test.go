package bus_test

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/bus"
	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

func TestPublishFiltersByPath(t *testing.T) {
	t.Parallel()

	b := bus.New[string]()
	var all, social, phone []string
	b.Subscribe(func(e string) { all = append(all, e) })
	b.Subscribe(func(e string) { social = append(social, e) }, fieldpath.MustParse("social"))
	b.Subscribe(func(e string) { phone = append(phone, e) }, fieldpath.MustParse("phNumbers.0.number"))

	b.Publish(fieldpath.MustParse("social.twitter"), "twitter")
	b.Publish(fieldpath.MustParse("phNumbers"), "array")
	b.Publish(fieldpath.MustParse("username"), "username")
	b.Publish(fieldpath.Path{}, "reset")
	b.Broadcast("status")

	if diff := cmp.Diff([]string{"twitter", "array", "username", "reset", "status"}, all); diff != "" {
		t.Fatalf("unfiltered subscriber (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"twitter", "reset", "status"}, social); diff != "" {
		t.Fatalf("social subscriber (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"array", "reset", "status"}, phone); diff != "" {
		t.Fatalf("phone subscriber (-want +got):\n%s", diff)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := bus.New[int]()
	var got []int
	token := b.Subscribe(func(e int) { got = append(got, e) })
	b.Broadcast(1)
	if !b.Unsubscribe(token) {
		t.Fatalf("expected Unsubscribe to find the token")
	}
	b.Broadcast(2)

	if diff := cmp.Diff([]int{1}, got); diff != "" {
		t.Fatalf("delivery after unsubscribe (-want +got):\n%s", diff)
	}
	if b.Unsubscribe(token) {
		t.Fatalf("second Unsubscribe should report false")
	}
	if b.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Len())
	}
}

func TestPublishFromHandlerIsQueued(t *testing.T) {
	t.Parallel()

	b := bus.New[string]()
	var order []string
	b.Subscribe(func(e string) {
		order = append(order, "first:"+e)
		if e == "outer" {
			b.Broadcast("inner")
		}
	})
	b.Subscribe(func(e string) { order = append(order, "second:"+e) })

	b.Broadcast("outer")

	want := []string{"first:outer", "second:outer", "first:inner", "second:inner"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("nested publish order (-want +got):\n%s", diff)
	}
}

func TestUnsubscribeDuringDelivery(t *testing.T) {
	t.Parallel()

	b := bus.New[string]()
	var second bus.Token
	var got []string
	b.Subscribe(func(e string) { b.Unsubscribe(second) })
	second = b.Subscribe(func(e string) { got = append(got, e) })

	b.Broadcast("x")

	if len(got) != 0 {
		t.Fatalf("unsubscribed handler still received %v", got)
	}
}

func TestConcurrentPublishDeliversEverything(t *testing.T) {
	t.Parallel()

	b := bus.New[int]()
	var mu sync.Mutex
	count := 0
	b.Subscribe(func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Broadcast(i)
		}(i)
	}
	// the goroutine draining the queue only returns once it is empty
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Fatalf("expected 50 deliveries, got %d", count)
	}
}
