// Package dedupe remembers recently accepted client message IDs so that a
// client retrying a send after a dropped acknowledgement does not create a
// second copy of the message.
package dedupe
