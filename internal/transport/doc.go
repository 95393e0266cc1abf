// Package transport serves realtime sessions over websockets.
//
// Two endpoints are exposed: /hubs/presence and /hubs/message?userId=<id>.
// Credentials come from an Authorization bearer header or, for browsers,
// the access_token query parameter. Authentication and join parameter
// errors are answered with 401 and 400 before the upgrade. Failures that
// happen after the session is authenticated are reported with an Error
// frame followed by a close frame.
//
// Frames are JSON objects of the form {"type": ..., "data": ...}. The only
// inbound frame is SendMessage; a rejected send is answered with a
// SendRejected frame on the same connection.
//
// Each Client owns a bounded outbound queue. Deliver never blocks: when the
// queue is full the event is dropped and ErrSlowConsumer is returned.
package transport
