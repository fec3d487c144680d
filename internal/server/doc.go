// Package server implements the websocket API of the image filter server.
//
// Each route is a short exchange over one websocket connection. The
// connection is closed when the exchange ends, successfully or not.
//
// # Routes
//
//   - /api/v1/filters: the server sends the supported filter names as a
//     JSON array.
//   - /api/v1/filters/stat: the server sends a JSON object mapping each of
//     the last 30 calendar days (YYYY-MM-DD) to the number of requests
//     logged that day, zero included.
//   - /api/v1/filters/apply: the filter exchange described below.
//   - /metrics: prometheus metrics over plain HTTP.
//
// Every route also matches with a trailing slash. Any other path is
// answered with HTTP 404 and never upgraded.
//
// # Apply Exchange
//
// The client sends a JSON filter list, then the image:
//
//	client                               server
//	[{"name":"sepia","params":{}}]  ->
//	                                <-   {"status":200}
//	<PNG or JPEG bytes>             ->
//	                                <-   {"status":200}
//	                                <-   <result image, binary>
//
// The filter list is checked for JSON syntax (410) and against the
// filter-list schema (411). The image is sniffed from its bytes: a payload
// that is not an image is rejected with 421, an image in a format other
// than PNG or JPEG with 420. Accepted requests are written to the usage log
// before the filters run. A filter failure is reported as 500.
//
// # Error Handling
//
// Rejections carry {"status": <code>, "error": <message>} and end the
// exchange. If the client disconnects while filters are running, the
// session context is cancelled, which kills a running upscale process and
// removes its staged files.
//
// # Usage
//
//	srv := server.New(cfg, usageLog, filters.NewFactory(upscaler),
//	    server.WithLogger(log.Logger))
//	go srv.ListenAndServe()
//	...
//	srv.Shutdown(ctx)
package server
