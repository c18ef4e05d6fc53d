// Package ws serves the /events websocket. Each frame is dispatched as a
// "message" event; the reply reports whether a listener vetoed it.
//
//	-> {"user": "ada", "text": "hi"}
//	<- {"vetoed": false}
package ws
