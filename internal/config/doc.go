// Package config handles configuration loading for the CelesteNet user tool.
//
// # Overview
//
// Configuration is read from a YAML file, or TOML when the file name ends in
// .toml. Keys missing from the file keep the values from Default.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CNUT_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/cnut/config.yaml
//
// Init creates the file on first run with a random JWT secret, and adds keys
// introduced by newer releases to an existing file without touching the
// values already there.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CNUT_JWT_SECRET}"
//
// After the file is read, CNUT_<SECTION>_<KEY> variables override single
// fields, for example CNUT_SERVER_HTTP_ADDR or CNUT_AUTH_SUPER_ADMIN
// (comma separated).
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "60m"
//	celestenet:
//	  timeout: "3s"
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:17238"
//	  grpc_addr: "127.0.0.1:17239"
//	  max_concurrent_requests: 4
//
//	storage:
//	  user_data_path: "/serverpath/UserData/"
//	  database_name: "main.db"
//	  driver: "sqlite3"
//
//	auth:
//	  jwt_secret: "${CNUT_JWT_SECRET}"
//	  token_ttl: "60m"
//	  super_admin: [madeline]
//
//	celestenet:
//	  api_addr: "localhost:17232/api"
//	  web_redirect: "localhost:17232"
//	  web_title: "CelesteNetCN"
//
//	logging:
//	  level: "info"
//	  format: "text"
//	  dir: "CNUTlog"
//	  max_size_mb: 32
package config
