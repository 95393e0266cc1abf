// Package auth authenticates members for heartline-gateway.
//
// # Identity
//
// Member identity is issued by the dating-app account service. The gateway
// only verifies it: every connection and API call presents Credentials that
// an IdentityResolver turns into a member ID.
//
//   - TokenResolver: verifies HS256 JWTs signed with auth.jwt_secret. The
//     member ID is the "sub" claim.
//   - InsecureResolver: treats the token as the member ID. Used only when no
//     jwt_secret is configured, and the gateway logs a warning at startup.
//
// # Transports
//
// Websocket handshakes carry the token in the Authorization header or, for
// browser clients, in the access_token query parameter (see
// CredentialsFromRequest). JSON API requests use HTTPAuthMiddleware, which
// requires a bearer header and stores an AuthContext in the request context:
//
//	memberID := auth.MustFromContext(r.Context()).MemberID
package auth
