// Package mxe is a client for confidential computations on an MXE cluster.
//
// Inputs are sealed under a secret agreed between a fresh ephemeral X25519
// key and the cluster's published key, submitted through a gateway, and
// executed by the cluster without being revealed. The encrypted result
// arrives later as a notification and is decrypted by the session that
// submitted the request.
//
// Basic usage:
//
//	transport, err := mxe.NewHTTPTransport("https://gateway.example.com",
//	    mxe.WithAPIKey(os.Getenv("MXE_API_KEY")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := mxe.New(transport)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Compute(ctx, 8, 9)
//	if err != nil {
//	    if mxe.IsRetryable(err) {
//	        // A new session may succeed.
//	    }
//	    log.Fatal(err)
//	}
//
//	fmt.Println("bounty:", res.Values[0])
package mxe
