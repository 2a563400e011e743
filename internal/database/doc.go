// Package database is the relational store collaborator: the pgx/v5-backed
// persistence the retrieval-and-routing core writes each request's messages
// and routing log to.
//
// # Connection
//
//	db, err := database.NewPostgresDB(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := database.RunMigrations(ctx, db.Pool()); err != nil {
//	    log.Fatal(err)
//	}
//
// Host and port come from cfg.Postgres; credentials that ServiceEndpoint
// doesn't carry (user, password, database name, SSL mode) come from
// DB_USER, DB_PASSWORD, DB_NAME and DB_SSL_MODE.
//
// # Repositories
//
//   - UserRepository: get_user(user_id), list_tasks(user_id)
//   - MessageRepository: append_message, plus reads of a user's recent
//     messages and recent queries
//   - RoutingLogRepository: append_routing_log, per-user routing history
//   - ChunkRepository: document chunk storage backing ingestion and the
//     vector store's source-of-truth copy
//
// # Schema
//
//	users                   - caller profile (name, role, department, language)
//	onboarding_tasks        - per-user onboarding checklist read by Progress
//	conversation_messages   - append-only chat history
//	routing_log             - one row per request: departments, confidence,
//	                          escalation outcome
//	cache_entries           - created by the migrations; no repository uses it
//
// # Pool tuning
//
// NewPostgresDB builds its pool through pool_config.go's
// CreateOptimizedPoolConfig and DefaultPoolOptions rather than
// pgxpool.ParseConfig directly. HighPerformancePoolOptions and
// LowLatencyPoolOptions are alternate profiles a deployment can pass to
// CreateOptimizedPoolConfig in place of the default.
package database
