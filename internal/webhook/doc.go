// Package webhook serves the provider-facing endpoint of hookq.
//
// A single path (default /whatsapp) answers two kinds of request:
//
//   - GET with hub.mode, hub.verify_token and hub.challenge is the
//     subscription handshake. When the mode is "subscribe" and the token
//     matches, the challenge is echoed back with 200. Anything else gets 400
//     with no body.
//   - POST is an event delivery. The raw body is authenticated with an HMAC
//     signature header ("sha1=<hex>" in X-Hub-Signature by default) before it
//     is parsed, and the decoded JSON is appended to the queue.
//
// # Security Model
//
//   - Signatures are compared with hmac.Equal (constant time)
//   - The algorithm token in the header must equal the configured algorithm
//   - Body size limits are enforced before hashing
//   - Error responses never echo the payload or the expected signature
//   - Payload bodies are only logged at debug level
//
// # Error Responses
//
//   - 400 Bad Request: handshake rejected, signature missing/malformed/wrong,
//     or body is not JSON
//   - 413 Payload Too Large: body exceeds max_body_size
//   - 503 Service Unavailable: the queue store rejected or timed out the append
//   - 500 Internal Server Error: anything else
//
// # Example Usage
//
//	srv, err := webhook.New(webhook.Config{
//		Listen:      ":8080",
//		VerifyToken: os.Getenv("TOKEN"),
//		Secret:      os.Getenv("APP_SECRET"),
//		Algorithm:   "sha1",
//	}, enqueuer, logger)
//	if err != nil {
//		return err
//	}
//	return srv.Start(ctx)
package webhook
