// Package presence tracks which members currently hold at least one live
// realtime connection.
//
// A member may be connected several times at once (browser tabs, phone,
// desktop). The Registry keeps the full set of connection IDs per member and
// prunes a member as soon as its last connection goes away, so "present" is
// always equivalent to "has a non-empty connection set".
//
// The Registry is constructed once by the gateway and shared by every session:
//
//	reg := presence.New()
//	if reg.Connect(memberID, connID) {
//		// member just came online
//	}
//	defer reg.Disconnect(memberID, connID)
package presence
