// Package blog provides the entity service of a small blogging backend:
// modes, posts and tags stored in a relational primary store and mirrored
// into a search index.
//
// # Basic Usage
//
//	st := memory.New()
//	idx := searchmem.New()
//
//	svc, err := blog.NewService(
//	    blog.WithStore(st),
//	    blog.WithIndex(idx),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	mode, err := svc.Modes().Create(ctx, &store.Mode{Name: "Journal", Handle: "journal"})
//
// # Index Synchronization
//
// Every mutation writes the entity and an outbox task in one primary-store
// transaction. After the commit the service syncs the search index in the
// background: it reloads the entity, upserts or deletes its document and
// acknowledges the outbox tasks it covered. Failed syncs are retried with
// backoff, recorded on the outbox and reported through
// WithIndexFailureHandler and the IndexSyncFailed event. Pending tasks are
// re-applied by DrainIndexOutbox, and Reindex rebuilds a kind from scratch.
//
// Use WithSyncIndexing(true) to make mutations wait for the index.
//
// # Events
//
// The service publishes EntityCreated, EntityUpdated, EntityDeleted and
// IndexSyncFailed on a github.com/rbaliyan/event/v3 bus. Pass WithRedisClient
// or WithEventTransport to deliver them; otherwise a noop transport is used.
//
//	svc.Events().EntityCreated.Subscribe(ctx, handler)
package blog
