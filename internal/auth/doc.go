// Package auth provides authentication for the CelesteNet user tool.
//
// # Passwords
//
// Web passwords are hashed with PBKDF2-HMAC-SHA256, 100,000 iterations, and a
// per-user salt made of 16 random bytes in hex. The hex text of the salt is the
// PBKDF2 salt input. Hashes are stored as hex in the web_users table through
// the Credentials service.
//
// # Session Tokens
//
// Logged in users receive an HS256 JWT:
//
//	{"sub": "<uid>", "is_admin": true, "iat": ..., "exp": ...}
//
// is_admin reflects the admin tag at login time. Admin-only routes re-check
// the live profile through a RoleChecker; routes that only need "self or
// admin" trust the claim.
//
// # HTTP Middleware
//
//	HTTPAuthMiddleware(verifier, logger)  // requires a bearer token
//	RequireAdminHTTP(roles)               // live admin tag
//	RequireSuperAdminHTTP(roles)          // configured super admin with admin tag
//
// Errors are written as {"status": "error", "message": "..."}.
//
// # gRPC
//
// The key lookup service accepts an optional shared token in the
// "authorization" metadata. Health checks are exempt.
package auth
