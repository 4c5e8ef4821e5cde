// Package mux multiplexes one line-oriented request/response protocol over a
// transport.Conn.
//
// All three protocols flx speaks (the flutter daemon, the per-app flutter run
// channel, and the Dart VM service) have the same shape: messages arrive as
// lines, some of them answer a request by id, and the rest are unsolicited
// events that any number of listeners may care about. Mux implements that
// pattern once; a Dialect supplies the per-protocol framing and envelope
// shapes.
//
// # Fan-out
//
// A LineReader owns the read half of the transport and republishes every line
// to every subscriber. Each subscriber has its own bounded buffer; when a
// subscriber falls behind its oldest line is dropped, so a slow log view can
// never stall a call waiting for its response.
//
// # Calls
//
// Call subscribes, writes the request, then scans lines until one decodes as
// a response carrying its id. Lines that do not match are skipped, not
// consumed, so concurrent calls and event subscribers all see every line.
// There is no timeout: bound a call with the context.
//
//	version, err := mux.CallAs[string](ctx, m, "daemon.version", nil)
//
// # Events
//
//	devices := mux.SubscribeAs[machine.Device](m, "device.added")
//	defer devices.Close()
//	for {
//	    d, err := devices.Next(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(d.Name)
//	}
package mux
