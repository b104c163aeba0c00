/*Package sas generates and verifies shared access signature (SAS) tokens for devices

A SAS token is a time-bounded credential which a device presents as MQTT password
to the broker. It is created by signing the canonical string

	{url encoded resource uri}\n{expiry}

with HMAC-SHA256 under the decoded device key, and embedding the Base64 encoded
digest together with resource and expiry into the broker's password format.

The Generator works on caller-owned buffers only:

	signature := make([]byte, 256)
	token := make([]byte, 256)
	g := sas.NewGenerator(&sas.Builder{
		Client:          &hub.Client{Hostname: "myhub.azure-devices.net", DeviceID: "dev1"},
		DeviceKey:       deviceKey,
		SignatureBuffer: signature,
		TokenBuffer:     token,
	})
	if err := g.Generate(60); err != nil {
		...
	}
	password := g.Get()

The signature buffer first receives the decoded device key, then the digest. Key
bytes beyond the digest are zeroed after signing. The token returned by Get is a view
into the token buffer and stays valid until the next successful Generate.

A failed Generate changes neither the token nor its expiration. Callers renew with
a loop which checks IsExpiringSoon, see package renewal.

Errors are classified with Kind: ErrCapacityExceeded for buffers which are too small,
ErrMalformedInput for invalid device keys, and ErrUpstreamFailure for everything the
broker client reports.

Brokers verify tokens with Parse and Verify.
*/
package sas
