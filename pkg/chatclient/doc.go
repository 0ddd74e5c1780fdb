// Package chatclient implements the client-side synchronization core for an
// OmniChat session.
//
// Ownership model:
//   - The SessionStore is the single mutable resource; callers submit intents
//     (InitializeSession/SwitchConversation/SendMessage) and render snapshots,
//     they never mutate fields directly.
//   - The Transport owns the websocket connection and publishes decoded events
//     onto an in-process watermill bus; the store's Run loop is their only
//     consumer, so events apply in receipt order.
//   - The Gateway issues REST calls and holds no state beyond in-flight
//     requests.
//
// Recommended setup:
//   - Build a Gateway with NewGateway and a Transport with NewWSTransport.
//   - Build a SessionStore with NewSessionStore and run Transport.Run and
//     SessionStore.Run under one errgroup.
//   - Feed keystrokes to a TypingDebouncer bound to the transport.
package chatclient
