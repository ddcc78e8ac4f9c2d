// Package store provides persistent user storage for CelesteNet using SQLite.
//
// # Architecture
//
// One *sql.DB pool, opened by the process entry point with Open, is shared by
// every operation. SQLiteStore implements several small interfaces:
//
//   - KeyStore: uid to access key mapping in the meta table
//   - RecordStore: typed per-user records (BasicUserInfo, BanInfo, ...)
//   - BlobStore: per-user binary files (avatar.png, ...)
//   - CredentialStore: web login credentials in web_users
//
// # Schema
//
// The schema is fixed and created on every open:
//
//   - meta: uid, key, keyfull, registered
//   - data / file: catalogs of registered record and file names
//   - data_records / file_records: one row per (name, uid)
//   - web_users: password hash, salt and email per uid
//
// Every registered name also gets a view named after its physical table name
// (for example "data.Celeste.Mod.CelesteNet.Server.BasicUserInfo") so the
// game server can keep reading per-type tables. Data views accept inserts
// and deletes through INSTEAD OF triggers.
//
// # Names
//
// Physical names are derived from logical names by stripping the characters
// ` ´ ' " ^ [ ] \ /. When stripping changes a name a short digest of the
// original is appended, so distinct logical names never share a table.
//
// # Encoding
//
// Typed records are MessagePack encoded (format 0). Timestamps use the
// MessagePack timestamp extension.
//
// # Concurrency
//
// Only key allocation (CreateUser, RotateKey) is serialized by a mutex.
// Everything else relies on SQLite transactions and the busy timeout.
//
// # Blob writes
//
// File contents are buffered in a WriteBuffer, capped at MaxBlobSize, and
// written by Commit as one bound parameter in a single upsert.
//
// # Existing tables
//
// A database written by older tooling may already hold one real table per
// record type or file name. Such a table is used in place: reads and writes
// go to its value column instead of the shared record tables.
package store
