// Package groups tracks conversation groups: the set of live connections
// currently viewing the conversation between two members.
//
// A group is named by Name(a, b), which is the same for both members. The
// Tracker answers "is the recipient looking at this conversation right now",
// which decides whether a new message is marked read on arrival and who
// receives the in-conversation broadcast.
package groups
