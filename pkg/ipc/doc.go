// Package ipc implements request/response messaging between local processes
// over a unix domain socket.
//
// Messages travel as newline-delimited JSON records. A Server binds the
// socket and dispatches decoded requests to a single registered Handler; a
// Client dials the socket and correlates replies to in-flight requests by
// id, so any number of requests can be multiplexed over one connection and
// complete in any order.
//
// # Server
//
//	srv := ipc.NewServer("/run/myapp/myapp.sock")
//	srv.OnMessage(func(ctx context.Context, payload json.RawMessage) (any, error) {
//	    return map[string]any{"ok": true}, nil
//	})
//	if err := srv.Listen(); err != nil {
//	    return err
//	}
//	defer srv.Close()
//
// # Client
//
//	cli := ipc.NewClient("/run/myapp/myapp.sock")
//	if err := cli.Connect(); err != nil {
//	    return err
//	}
//	defer cli.Close()
//	reply, err := cli.Send(ctx, map[string]string{"command": "ping"})
package ipc
