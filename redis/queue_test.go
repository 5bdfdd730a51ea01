package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	queuify "github.com/msamsami/queuify"
)

const testMaxSize = 5

func openTestQueue(t *testing.T, maxsize int) *Queue[string] {
	t.Helper()
	mr := miniredis.RunT(t)
	return newTestQueue(t, mr, "queue1", maxsize)
}

func newTestQueue(t *testing.T, mr *miniredis.Miniredis, name string, maxsize int) *Queue[string] {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, name, queuify.StringCodec{}, Options{MaxSize: maxsize})
}

func TestPutGetOrder(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx := context.Background()

	for i := 0; i < testMaxSize; i++ {
		if err := q.Put(ctx, fmt.Sprintf("message%d", i), 0); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if n, _ := q.Size(ctx); n != testMaxSize {
		t.Fatalf("size = %d, want %d", n, testMaxSize)
	}
	for i := 0; i < testMaxSize; i++ {
		msg, err := q.Get(ctx, 0)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if want := fmt.Sprintf("message%d", i); msg != want {
			t.Fatalf("get %d = %q, want %q", i, msg, want)
		}
		if err := q.TaskDone(ctx); err != nil {
			t.Fatalf("task done %d: %v", i, err)
		}
		if full, _ := q.Full(ctx); full {
			t.Fatalf("full after get %d", i)
		}
	}
	if n, _ := q.Size(ctx); n != 0 {
		t.Fatalf("final size = %d, want 0", n)
	}
}

func TestFullAndPutNoWaitOverflow(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx := context.Background()

	for i := 0; i < testMaxSize; i++ {
		if err := q.Put(ctx, fmt.Sprintf("message%d", i), 0); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	full, err := q.Full(ctx)
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if !full {
		t.Fatalf("expected full queue")
	}
	if err := q.PutNoWait(ctx, "overflow"); !errors.Is(err, queuify.ErrQueueFull) {
		t.Fatalf("put_nowait on full queue = %v, want ErrQueueFull", err)
	}
}

func TestGetNoWaitEmpty(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	if _, err := q.GetNoWait(context.Background()); !errors.Is(err, queuify.ErrQueueEmpty) {
		t.Fatalf("get_nowait on empty queue = %v, want ErrQueueEmpty", err)
	}
}

func TestUnboundedNeverFull(t *testing.T) {
	q := openTestQueue(t, 0)
	ctx := context.Background()

	for i := 0; i < 2*testMaxSize; i++ {
		if err := q.PutNoWait(ctx, "message"); err != nil {
			t.Fatalf("unbounded put %d: %v", i, err)
		}
	}
	if full, _ := q.Full(ctx); full {
		t.Fatalf("unbounded queue must never be full")
	}
}

func TestSemaphoreTracksFreeSlots(t *testing.T) {
	mr := miniredis.RunT(t)
	q := newTestQueue(t, mr, "queue1", testMaxSize)
	ctx := context.Background()

	// First use primes the semaphore with one token per free slot.
	if err := q.PutNoWait(ctx, "message0"); err != nil {
		t.Fatalf("put: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := client.LLen(ctx, q.keys.semaphore).Result()
	if err != nil {
		t.Fatalf("llen semaphore: %v", err)
	}
	// PutNoWait reserves no token; only blocking Put consumes one.
	if tokens != testMaxSize {
		t.Fatalf("semaphore tokens = %d, want %d", tokens, testMaxSize)
	}

	if err := q.Put(ctx, "message1", 0); err != nil {
		t.Fatalf("blocking put: %v", err)
	}
	tokens, _ = client.LLen(ctx, q.keys.semaphore).Result()
	if tokens != testMaxSize-1 {
		t.Fatalf("semaphore tokens after blocking put = %d, want %d", tokens, testMaxSize-1)
	}

	if _, err := q.Get(ctx, 0); err != nil {
		t.Fatalf("get: %v", err)
	}
	tokens, _ = client.LLen(ctx, q.keys.semaphore).Result()
	if tokens != testMaxSize {
		t.Fatalf("semaphore tokens after get = %d, want %d", tokens, testMaxSize)
	}
}

func TestSecondHandleSeesExistingSemaphore(t *testing.T) {
	mr := miniredis.RunT(t)
	first := newTestQueue(t, mr, "queue1", testMaxSize)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := first.Put(ctx, fmt.Sprintf("message%d", i), 0); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	// Initialization by a second handle must not recreate tokens for
	// occupied slots.
	second := newTestQueue(t, mr, "queue1", testMaxSize)
	if n, err := second.Size(ctx); err != nil || n != 3 {
		t.Fatalf("size via second handle = %d, %v", n, err)
	}
	for i := 0; i < 2; i++ {
		if err := second.Put(ctx, "fill", 0); err != nil {
			t.Fatalf("fill put %d: %v", i, err)
		}
	}
	if err := second.PutNoWait(ctx, "overflow"); !errors.Is(err, queuify.ErrQueueFull) {
		t.Fatalf("put_nowait past capacity = %v, want ErrQueueFull", err)
	}
}

func TestTaskDoneWithoutGet(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	if err := q.TaskDone(context.Background()); !errors.Is(err, queuify.ErrTaskDoneTooMany) {
		t.Fatalf("task_done on fresh queue = %v, want ErrTaskDoneTooMany", err)
	}
}

func TestTaskDoneTooManyCalls(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx := context.Background()

	if err := q.Put(ctx, "x", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := q.Get(ctx, 0); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := q.TaskDone(ctx); err != nil {
		t.Fatalf("first task_done: %v", err)
	}
	if err := q.TaskDone(ctx); !errors.Is(err, queuify.ErrTaskDoneTooMany) {
		t.Fatalf("second task_done = %v, want ErrTaskDoneTooMany", err)
	}
}

func TestJoinReturnsWhenNoUnfinishedTasks(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := q.Join(ctx); err != nil {
		t.Fatalf("join on fresh queue: %v", err)
	}
}

func TestJoinBlocksUntilTaskDone(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx := context.Background()

	if err := q.Put(ctx, "x", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	joined := make(chan error, 1)
	go func() { joined <- q.Join(ctx) }()

	select {
	case err := <-joined:
		t.Fatalf("join returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := q.Get(ctx, 0); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := q.TaskDone(ctx); err != nil {
		t.Fatalf("task done: %v", err)
	}

	select {
	case err := <-joined:
		if err != nil {
			t.Fatalf("join: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("join did not unblock after task_done")
	}
}

func TestDeleteWakesJoinAndRemovesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	q := newTestQueue(t, mr, "queue1", testMaxSize)
	ctx := context.Background()

	if err := q.Put(ctx, "x", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	joined := make(chan error, 1)
	go func() { joined <- q.Join(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := q.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case err := <-joined:
		if err != nil {
			t.Fatalf("join after delete: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("join did not unblock after delete")
	}

	for _, key := range q.keys.all() {
		if mr.Exists(key) {
			t.Fatalf("key %s still present after delete", key)
		}
	}
}

func TestPutTimeoutAccuracy(t *testing.T) {
	q := openTestQueue(t, 1)
	ctx := context.Background()

	if err := q.Put(ctx, "x", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	start := time.Now()
	err := q.Put(ctx, "overflow", time.Second)
	elapsed := time.Since(start)
	if !errors.Is(err, queuify.ErrQueueFull) {
		t.Fatalf("timed-out put = %v, want ErrQueueFull", err)
	}
	if elapsed < 850*time.Millisecond || elapsed > 1500*time.Millisecond {
		t.Fatalf("timed-out put took %v, want ~1s", elapsed)
	}
}

func TestGetTimeout(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	if _, err := q.Get(context.Background(), 200*time.Millisecond); !errors.Is(err, queuify.ErrQueueEmpty) {
		t.Fatalf("timed-out get = %v, want ErrQueueEmpty", err)
	}
}

func TestNegativeTimeout(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx := context.Background()

	if err := q.Put(ctx, "x", -time.Second); !errors.Is(err, queuify.ErrNegativeTimeout) {
		t.Fatalf("put with negative timeout = %v, want ErrNegativeTimeout", err)
	}
	if _, err := q.Get(ctx, -time.Second); !errors.Is(err, queuify.ErrNegativeTimeout) {
		t.Fatalf("get with negative timeout = %v, want ErrNegativeTimeout", err)
	}
}

func TestBlockedGetWakesOnPut(t *testing.T) {
	q := openTestQueue(t, testMaxSize)
	ctx := context.Background()

	got := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		msg, err := q.Get(ctx, 5*time.Second)
		if err != nil {
			errs <- err
			return
		}
		got <- msg
	}()

	time.Sleep(150 * time.Millisecond)
	if err := q.Put(ctx, "late", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	select {
	case msg := <-got:
		if msg != "late" {
			t.Fatalf("blocked get = %q, want %q", msg, "late")
		}
	case err := <-errs:
		t.Fatalf("blocked get: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("blocked get did not wake on put")
	}
}

func TestBlockedPutWakesOnGet(t *testing.T) {
	q := openTestQueue(t, 1)
	ctx := context.Background()

	if err := q.Put(ctx, "first", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, "second", 5*time.Second) }()

	time.Sleep(150 * time.Millisecond)
	if _, err := q.Get(ctx, 0); err != nil {
		t.Fatalf("get: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked put: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("blocked put did not wake on get")
	}
	msg, err := q.GetNoWait(ctx)
	if err != nil || msg != "second" {
		t.Fatalf("get after blocked put = %q, %v", msg, err)
	}
}

func TestConcurrentPutNoWaitRespectsBound(t *testing.T) {
	q := openTestQueue(t, 3)
	ctx := context.Background()

	const producers = 10
	var wg sync.WaitGroup
	results := make(chan error, producers)
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- q.PutNoWait(ctx, fmt.Sprintf("message%d", i))
		}(i)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, queuify.ErrQueueFull):
		default:
			t.Fatalf("concurrent put: %v", err)
		}
	}
	if accepted != 3 {
		t.Fatalf("accepted %d puts, want 3", accepted)
	}
	if n, _ := q.Size(ctx); n != 3 {
		t.Fatalf("size = %d, want 3", n)
	}
}

func TestWaitJoinSignal(t *testing.T) {
	ctx := context.Background()

	ch := make(chan *goredis.Message, 2)
	ch <- &goredis.Message{Payload: "unrelated"}
	ch <- &goredis.Message{Payload: noRemainingTasksMsg}
	if err := waitJoinSignal(ctx, ch); err != nil {
		t.Fatalf("wait with completion payload: %v", err)
	}

	ch = make(chan *goredis.Message, 1)
	ch <- &goredis.Message{Payload: queueDeletedMsg}
	if err := waitJoinSignal(ctx, ch); err != nil {
		t.Fatalf("wait with deletion payload: %v", err)
	}
}

func TestWaitJoinSignalClosedChannel(t *testing.T) {
	ch := make(chan *goredis.Message)
	close(ch)
	err := waitJoinSignal(context.Background(), ch)
	if err == nil {
		t.Fatalf("closed subscription channel must not report success")
	}
	if !errors.Is(err, errJoinSubscriptionClosed) {
		t.Fatalf("closed subscription channel = %v, want errJoinSubscriptionClosed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch = make(chan *goredis.Message)
	close(ch)
	if err := waitJoinSignal(ctx, ch); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled wait = %v, want context.Canceled", err)
	}
}

func TestQueuesAreIsolatedByName(t *testing.T) {
	mr := miniredis.RunT(t)
	q1 := newTestQueue(t, mr, "queue1", 0)
	q2 := newTestQueue(t, mr, "queue2", 0)
	ctx := context.Background()

	if err := q1.PutNoWait(ctx, "only-in-one"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if n, _ := q2.Size(ctx); n != 0 {
		t.Fatalf("queue2 size = %d, want 0", n)
	}
	if _, err := q2.GetNoWait(ctx); !errors.Is(err, queuify.ErrQueueEmpty) {
		t.Fatalf("get_nowait on other queue = %v, want ErrQueueEmpty", err)
	}
}
