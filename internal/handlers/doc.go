// Package handlers implements the HTTP API of the challenge-media server.
//
// Uploads:
//
//	POST   /api/images                           single-shot multipart upload
//	POST   /api/uploads                          start a chunked upload
//	PUT    /api/uploads/{id}/chunks/{index}      write one chunk
//	GET    /api/uploads/{id}                     session status
//	DELETE /api/uploads/{id}                     cancel
//
// Delivery:
//
//	GET    /images/{path}?variant=small&v=token  image bytes
//	GET    /api/images/{path}                    record and versioned URLs
//
// Admin (HTTP Basic auth):
//
//	GET    /api/admin/images                     list
//	PATCH  /api/admin/images/{path}              update metadata
//	DELETE /api/admin/images/{path}              delete
//	POST   /api/admin/images/bulk-delete         throttled bulk delete
//	POST   /api/admin/images/{path}/regenerate   rebuild variants
//
// Every error is answered with an ErrorResponse whose code is stable and
// whose retriable flag says whether repeating the request may succeed.
package handlers
