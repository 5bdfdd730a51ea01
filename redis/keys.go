package redis

// Key namespace for one queue.
// Format: queuify:queue:{name} plus four derived keys.
const namespacePrefix = "queuify:queue"

type keys struct {
	main            string // list of items, ordering = list position
	semaphore       string // list of capacity tokens, present only when bounded
	semaphoreLock   string // short-expiry lock guarding one-time semaphore creation
	unfinishedTasks string // integer counter
	joinChannel     string // pub/sub topic waking Join callers
}

func keysFor(queueName string) keys {
	main := namespacePrefix + ":" + queueName
	return keys{
		main:            main,
		semaphore:       main + ":semaphore",
		semaphoreLock:   main + ":semaphore:lock",
		unfinishedTasks: main + ":unfinished_tasks",
		joinChannel:     main + ":join_channel",
	}
}

// all returns every key owned by the queue, for Delete.
func (k keys) all() []string {
	return []string{k.main, k.semaphore, k.semaphoreLock, k.unfinishedTasks, k.joinChannel}
}
