// Package queue provides the queue services and a polling consumer.
//
// queue.database stores messages in a SQL table through a database.sql
// service. queue.sharded spreads one logical queue over several other
// queue services:
//
//	[jobs_a]
//	service_provider = "queue.database"
//	connection = "db_a"
//
//	[jobs_b]
//	service_provider = "queue.database"
//	connection = "db_b"
//
//	[jobs]
//	service_provider = "queue.sharded"
//	shards = ["jobs_a", "jobs_b"]
//
// Consume drives a handler from any Queue:
//
//	q := container.MustResolve[queue.Queue](manager, "jobs")
//	n, err := queue.Consume(ctx, q, "emails", send, queue.WithMaxIdlePolls(10))
package queue
