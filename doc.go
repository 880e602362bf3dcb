// Package keymeter provides an embeddable Go client for the keymeter
// credential usage meter backed by Redis.
//
// The client wires the same storage and polling layers the keymeter
// server runs, so a Go program can track credentials and read the
// aggregated usage report without running the HTTP server:
//
//	client, err := keymeter.New(keymeter.WithRedis("localhost:6379", ""))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	_, _ = client.Keys().Add(ctx, "fk-secret-token")
//
//	rep, err := client.Report().Get(ctx)
//	for _, e := range rep.Entries {
//		fmt.Println(e.Key, e.Used, e.Allowance)
//	}
//
// Reports are cached in Redis for a configurable TTL; Get serves the
// cached report when fresh and polls the upstream otherwise.
package keymeter
